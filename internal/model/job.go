package model

import (
	"fmt"
	"strings"
	"time"
)

// Status marker vocabulary. The marker file holds exactly one of
// PENDING, OK, ERROR or ERROR (<detail>) where detail is a numeric
// exit code or a signal name like SIGKILL.
const (
	StatusPending = "PENDING"
	StatusOK      = "OK"
	StatusError   = "ERROR"
)

// ErrorStatus formats a terminal error marker. Empty detail means the
// process could not be spawned at all and yields the bare ERROR form.
func ErrorStatus(detail string) string {
	if detail == "" {
		return StatusError
	}
	return fmt.Sprintf("ERROR (%s)", detail)
}

// Job is one verification run reconstructed from its on-disk artifacts.
// It is never stored as a record anywhere, the output directory is the
// single source of truth.
type Job struct {
	Block      uint64    `json:"block"`
	Status     *string   `json:"status,omitempty"`    // nil when the marker file is absent or unreadable
	StdoutPath string    `json:"stdoutPath,omitempty"`
	StderrPath string    `json:"stderrPath,omitempty"`
	StatusPath string    `json:"statusPath,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"` // max mtime of the log files, zero when unknown
}

// StatusText returns the marker value or an empty string when unknown.
func (j Job) StatusText() string {
	if j.Status == nil {
		return ""
	}
	return *j.Status
}

// Done reports whether the job reached a terminal marker.
func (j Job) Done() bool {
	s := j.StatusText()
	return s == StatusOK || strings.HasPrefix(s, StatusError)
}

// Failed reports whether the job reached any of the ERROR markers.
func (j Job) Failed() bool {
	return strings.HasPrefix(j.StatusText(), StatusError)
}

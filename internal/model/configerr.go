package model

import (
	"fmt"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	reIncomplete = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict   = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
)

// CueErrDetails flattens a CUE validation error into one human line per
// distinct problem, so the CLI can print them before failing.
func CueErrDetails(err error) []string {
	if err == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, e := range cueerrors.Errors(err) {
		raw, _ := e.Msg()
		path := normalizePath(e.Path())
		line := classify(raw, path)
		for _, p := range cueerrors.Positions(e) {
			if p.Filename() != "" {
				line = fmt.Sprintf("%s (%s:%d:%d)", line, p.Filename(), p.Line(), p.Column())
				break
			}
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func classify(raw, path string) string {
	field := last(path)
	switch {
	case reNotAllowed.MatchString(raw):
		return fmt.Sprintf("field %s is not allowed", field)
	case reIncomplete.MatchString(raw):
		return fmt.Sprintf("field %s is required", field)
	case reConflict.MatchString(raw):
		return fmt.Sprintf("conflicting values for %s", field)
	default:
		if path == "" {
			return raw
		}
		return path + ": " + raw
	}
}

func normalizePath(p []string) string {
	if len(p) == 0 {
		return ""
	}
	// Remove leading definition (#Config)
	if strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func last(p string) string {
	if p == "" {
		return p
	}
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}

package results

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/parallel"
)

// number of concurrent stat/read calls while hydrating job records
const statLimit = 8

type role int

const (
	roleStdout role = iota
	roleStderr
	roleStatus
)

// List reconstructs all jobs from the output directory and returns them
// ordered by block number descending. A failure to enumerate the directory
// fails the whole call. Per-file stat and read failures degrade single
// fields only, partial information about many jobs beats refusing to show
// any.
func List(ctx context.Context, dir string) ([]model.Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing output directory %s: %w", dir, err)
	}

	byBlock := make(map[uint64]*model.Job)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		i := strings.IndexByte(name, '.')
		if i <= 0 {
			continue
		}
		block, err := strconv.ParseUint(name[:i], 10, 64)
		if err != nil {
			continue
		}
		r, ok := roleOf(name[i+1:])
		if !ok {
			// forward compatible with extra file types
			continue
		}

		job := byBlock[block]
		if job == nil {
			job = &model.Job{Block: block}
			byBlock[block] = job
		}
		path := filepath.Join(dir, name)
		switch r {
		case roleStdout:
			job.StdoutPath = path
		case roleStderr:
			job.StderrPath = path
		case roleStatus:
			job.StatusPath = path
		}
	}

	grouped := slices.Collect(maps.Values(byBlock))
	jobs := make([]model.Job, 0, len(grouped))
	for job := range parallel.Map(ctx, statLimit, grouped, hydrate) {
		jobs = append(jobs, job)
	}

	slices.SortFunc(jobs, func(a, b model.Job) int {
		return cmp.Compare(b.Block, a.Block) // descending
	})
	return jobs, nil
}

// hydrate fills status and freshness of one job record. It never fails,
// an unreadable file leaves the corresponding field unknown.
func hydrate(_ context.Context, job *model.Job) (model.Job, error) {
	var updated time.Time
	for _, path := range []string{job.StdoutPath, job.StderrPath} {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mt := info.ModTime(); mt.After(updated) {
			updated = mt
		}
	}
	job.UpdatedAt = updated

	if job.StatusPath != "" {
		if b, err := os.ReadFile(job.StatusPath); err == nil {
			s := string(b) // verbatim, markers are written without a newline
			job.Status = &s
		}
	}
	return *job, nil
}

// roleOf maps the part after the block number to an artifact role.
// Accepted forms are <role>.log, <role>.txt and the bare role name, the
// latter kept for read compatibility with older output directories.
func roleOf(token string) (role, bool) {
	stem := strings.TrimSuffix(strings.TrimSuffix(token, ".log"), ".txt")
	switch stem {
	case "stdout":
		return roleStdout, true
	case "stderr":
		return roleStderr, true
	case "status":
		return roleStatus, true
	}
	return 0, false
}

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/blocklens/blocklens/internal/model"

	"golang.org/x/sys/unix"
)

// Runner spawns the external verification tool, one child process per
// submitted block, and maintains the per-block status marker and log
// files inside the output directory.
//
// Each block owns an exclusive triplet of files, concurrent submissions
// for different blocks never contend. Two concurrent submissions for the
// same block race and the last write to each file wins. This is a known
// limitation, not guarded against, the markers stay a plain overwrite.
type Runner struct {
	dir    string
	binary string
	args   []string // extra args placed before the block number
}

// New creates a Runner writing into dir. The directory is created when
// missing, the files inside are never deleted by this package.
func New(dir, binary string, extraArgs ...string) (*Runner, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if binary == "" {
		return nil, fmt.Errorf("verifier binary is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	return &Runner{
		dir:    dir,
		binary: binary,
		args:   append([]string(nil), extraArgs...),
	}, nil
}

func (r *Runner) Dir() string {
	return r.dir
}

func (r *Runner) StatusPath(block uint64) string {
	return filepath.Join(r.dir, strconv.FormatUint(block, 10)+".status.txt")
}

func (r *Runner) StdoutPath(block uint64) string {
	return filepath.Join(r.dir, strconv.FormatUint(block, 10)+".stdout.log")
}

func (r *Runner) StderrPath(block uint64) string {
	return filepath.Join(r.dir, strconv.FormatUint(block, 10)+".stderr.log")
}

// Result is the terminal outcome of one verification run.
type Result struct {
	Block   uint64
	Status  string // marker as written to disk: OK, ERROR (<detail>) or ERROR
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Err     error
}

// Start writes the PENDING marker, spawns the verifier and returns without
// waiting. The returned channel delivers exactly one Result and is closed
// afterwards. When the process cannot be spawned the marker is overwritten
// with a bare ERROR and the spawn error is returned, no Result is delivered.
//
// The marker write happens before the spawn, so a concurrent directory
// scan can never observe a submitted job without a status file.
func (r *Runner) Start(ctx context.Context, block uint64, rpcURL string) (<-chan Result, error) {
	if err := r.writeStatus(block, model.StatusPending); err != nil {
		return nil, fmt.Errorf("writing status marker: %w", err)
	}

	stdout, err := os.Create(r.StdoutPath(block))
	if err != nil {
		return nil, r.spawnFailed(ctx, block, fmt.Errorf("creating stdout log: %w", err))
	}
	stderr, err := os.Create(r.StderrPath(block))
	if err != nil {
		_ = stdout.Close()
		return nil, r.spawnFailed(ctx, block, fmt.Errorf("creating stderr log: %w", err))
	}

	args := append(append([]string(nil), r.args...), strconv.FormatUint(block, 10))
	if rpcURL != "" {
		args = append(args, "--rpc-url", rpcURL)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdin = nil // the tool never expects input
	// the pipes stream straight into the log files, output of any size
	// passes through without being held in memory
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, r.spawnFailed(ctx, block, err)
	}
	slog.DebugContext(ctx, "verification started",
		"block", block, "binary", r.binary, "pid", cmd.Process.Pid)

	ch := make(chan Result, 1)
	go r.wait(ctx, cmd, block, started, stdout, stderr, ch)
	return ch, nil
}

// Submit is the blocking variant of Start, it resolves once the child
// process exited and the terminal marker is on disk.
func (r *Runner) Submit(ctx context.Context, block uint64, rpcURL string) error {
	ch, err := r.Start(ctx, block, rpcURL)
	if err != nil {
		return err
	}
	res := <-ch
	return res.Err
}

func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd, block uint64, started time.Time, stdout, stderr *os.File, ch chan<- Result) {
	err := cmd.Wait()
	// the child owns the descriptors until exit
	_ = stdout.Close()
	_ = stderr.Close()
	stopped := time.Now().UTC()

	status := terminalStatus(cmd.ProcessState)
	if werr := r.writeStatus(block, status); werr != nil {
		slog.ErrorContext(ctx, "writing terminal status marker failed",
			"block", block, "status", status, "error", werr)
	}

	res := Result{
		Block:   block,
		Status:  status,
		Started: started,
		Stopped: stopped,
		State:   cmd.ProcessState,
	}
	if status != model.StatusOK {
		res.Err = fmt.Errorf("verifier block %d: %s: %w", block, status, err)
	} else if err != nil {
		res.Err = err
	}
	ch <- res
	close(ch)
}

// spawnFailed records the bare ERROR marker, spawn failures carry no exit
// detail. The original error is returned for the caller to log.
func (r *Runner) spawnFailed(ctx context.Context, block uint64, err error) error {
	if werr := r.writeStatus(block, model.ErrorStatus("")); werr != nil {
		slog.ErrorContext(ctx, "writing spawn failure marker failed",
			"block", block, "error", werr)
	}
	return fmt.Errorf("spawning %s: %w", r.binary, err)
}

func (r *Runner) writeStatus(block uint64, status string) error {
	return os.WriteFile(r.StatusPath(block), []byte(status), 0o644)
}

// terminalStatus maps the process exit state to the marker vocabulary.
// Exit code and signal are mutually exclusive, the marker embeds whichever
// is present so operators can tell crash types apart without opening logs.
func terminalStatus(state *os.ProcessState) string {
	if state == nil {
		return model.ErrorStatus("")
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return model.ErrorStatus(unix.SignalName(ws.Signal()))
	}
	if state.ExitCode() == 0 {
		return model.StatusOK
	}
	return model.ErrorStatus(strconv.Itoa(state.ExitCode()))
}

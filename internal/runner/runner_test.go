package runner_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/runner"

	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script standing in for the external
// verification binary. It receives the block number as $1.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "check-tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestSubmitOK(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo "checking block $1"
echo "diag" >&2`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	err = r.Submit(t.Context(), 42, "")
	require.NoError(t, err)

	require.Equal(t, model.StatusOK, readFile(t, r.StatusPath(42)))
	require.Equal(t, "checking block 42\n", readFile(t, r.StdoutPath(42)))
	require.Equal(t, "diag\n", readFile(t, r.StderrPath(42)))
}

func TestSubmitExitCode(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `exit 3`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	err = r.Submit(t.Context(), 7, "")
	require.Error(t, err)
	require.ErrorContains(t, err, "ERROR (3)")
	require.Equal(t, "ERROR (3)", readFile(t, r.StatusPath(7)))
}

func TestSubmitSignal(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `kill -KILL $$`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	err = r.Submit(t.Context(), 9, "")
	require.Error(t, err)
	require.Equal(t, "ERROR (SIGKILL)", readFile(t, r.StatusPath(9)))
}

func TestSpawnFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r, err := runner.New(dir, filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)

	_, err = r.Start(t.Context(), 13, "")
	require.Error(t, err)
	// spawn failures carry no exit detail
	require.Equal(t, model.StatusError, readFile(t, r.StatusPath(13)))
}

func TestPendingPrecedesSpawn(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `sleep 10`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	ch, err := r.Start(ctx, 100, "")
	require.NoError(t, err)

	// marker is on disk before Start returned
	require.Equal(t, model.StatusPending, readFile(t, r.StatusPath(100)))

	cancel()
	res, ok := <-ch
	require.True(t, ok)
	require.Error(t, res.Err)
	require.Equal(t, "ERROR (SIGKILL)", res.Status)
	require.Equal(t, res.Status, readFile(t, r.StatusPath(100)))
	require.NotZero(t, res.Started)
	require.True(t, res.Stopped.After(res.Started) || res.Stopped.Equal(res.Started))

	_, ok = <-ch
	require.False(t, ok)
}

func TestRPCURLFlag(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo "$@"`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	err = r.Submit(t.Context(), 55, "http://localhost:8545")
	require.NoError(t, err)
	require.Equal(t, "55 --rpc-url http://localhost:8545\n", readFile(t, r.StdoutPath(55)))
}

func TestExtraArgs(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo "$@"`)
	r, err := runner.New(t.TempDir(), tool, "--chain", "mainnet")
	require.NoError(t, err)

	err = r.Submit(t.Context(), 1, "")
	require.NoError(t, err)
	require.Equal(t, "--chain mainnet 1\n", readFile(t, r.StdoutPath(1)))
}

func TestSameBlockRace(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo run`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	// last write wins, nothing must crash or deadlock
	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			_ = r.Submit(t.Context(), 77, "")
		})
	}
	wg.Wait()

	require.Equal(t, model.StatusOK, readFile(t, r.StatusPath(77)))
}

func TestLongOutputStreams(t *testing.T) {
	t.Parallel()
	// ~4 MiB of output, far beyond any pipe buffer
	tool := fakeTool(t, `i=0
while [ $i -lt 65536 ]; do echo "0123456789012345678901234567890123456789012345678901234567890123"; i=$((i+1)); done`)
	r, err := runner.New(t.TempDir(), tool)
	require.NoError(t, err)

	start := time.Now()
	err = r.Submit(t.Context(), 2, "")
	require.NoError(t, err)
	t.Logf("streamed in %v", time.Since(start))

	info, err := os.Stat(r.StdoutPath(2))
	require.NoError(t, err)
	require.EqualValues(t, 65536*65, info.Size())
}

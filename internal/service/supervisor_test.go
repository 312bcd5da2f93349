package service_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "check-tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func testConfig(tool, dir string) model.Config {
	cfg := model.DefaultConfig()
	cfg.Tool.Binary = tool
	cfg.Output.Dir = dir
	return cfg
}

func TestSupervisorBatch(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `if [ "$1" = "2" ]; then exit 3; fi
echo "block $1 ok"`)
	dir := t.TempDir()

	sup, err := service.NewSupervisor(t.Context(), testConfig(tool, dir))
	require.NoError(t, err)
	require.Equal(t, dir, sup.OutputDir())

	batch, err := sup.SubmitBatch(t.Context(), []uint64{1, 2, 3}, "")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, batch)

	// Close waits for every in-flight job
	require.NoError(t, sup.Close(t.Context()))

	jobs, err := sup.Jobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	byBlock := map[uint64]string{}
	var blocks []uint64
	for _, j := range jobs {
		blocks = append(blocks, j.Block)
		byBlock[j.Block] = j.StatusText()
	}
	require.Equal(t, []uint64{3, 2, 1}, blocks)
	require.Equal(t, model.StatusOK, byBlock[1])
	require.Equal(t, "ERROR (3)", byBlock[2])
	require.Equal(t, model.StatusOK, byBlock[3])
}

func TestSupervisorBatchIsolation(t *testing.T) {
	t.Parallel()
	// the spawn failure of every job must not prevent any sibling from running
	dir := t.TempDir()
	sup, err := service.NewSupervisor(t.Context(), testConfig(filepath.Join(dir, "missing-tool"), dir))
	require.NoError(t, err)

	_, err = sup.SubmitBatch(t.Context(), []uint64{10, 11}, "")
	require.NoError(t, err)
	require.NoError(t, sup.Close(t.Context()))

	jobs, err := sup.Jobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		require.Equal(t, model.StatusError, j.StatusText())
	}
}

func TestSupervisorEmptyBatch(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo ok`)
	sup, err := service.NewSupervisor(t.Context(), testConfig(tool, t.TempDir()))
	require.NoError(t, err)

	_, err = sup.SubmitBatch(t.Context(), nil, "")
	require.ErrorIs(t, err, model.ErrEmptyBatch)
}

func TestSupervisorSchedule(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo ok`)

	t.Run("invalid cron", func(t *testing.T) {
		cfg := testConfig(tool, t.TempDir())
		cfg.Service.Schedule = &model.Schedule{Cron: "* * * *"}
		_, err := service.NewSupervisor(t.Context(), cfg)
		require.Error(t, err)
	})

	t.Run("invalid duration", func(t *testing.T) {
		cfg := testConfig(tool, t.TempDir())
		cfg.Service.Schedule = &model.Schedule{Duration: "30s"}
		_, err := service.NewSupervisor(t.Context(), cfg)
		require.Error(t, err)
	})

	t.Run("empty schedule", func(t *testing.T) {
		cfg := testConfig(tool, t.TempDir())
		cfg.Service.Schedule = &model.Schedule{}
		_, err := service.NewSupervisor(t.Context(), cfg)
		require.Error(t, err)
	})

	t.Run("refresh", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testConfig(tool, dir)
		cfg.Service.Schedule = &model.Schedule{Duration: "PT1S"}
		sup, err := service.NewSupervisor(t.Context(), cfg)
		require.NoError(t, err)

		_, err = sup.SubmitBatch(t.Context(), []uint64{5}, "")
		require.NoError(t, err)

		sup.Start()
		require.Eventually(t, func() bool {
			jobs, err := sup.Jobs(t.Context())
			return err == nil && len(jobs) == 1 && jobs[0].StatusText() == model.StatusOK
		}, 10*time.Second, 50*time.Millisecond)

		require.NoError(t, sup.Close(t.Context()))
	})
}

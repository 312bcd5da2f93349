package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/blocklens/blocklens/internal/log"
	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/monitoring"
	"github.com/blocklens/blocklens/internal/parallel"
	"github.com/blocklens/blocklens/internal/results"
	"github.com/blocklens/blocklens/internal/runner"
)

type Supervisor struct {
	runner   *runner.Runner
	dir      string
	rpcURL   string // default upstream, per-batch override allowed
	parallel int    // batch fan-out limit, 0 means one process per block at once

	scheduler gocron.Scheduler
	wg        sync.WaitGroup

	cacheMx sync.RWMutex
	cache   []model.Job
	cached  bool
}

func NewSupervisor(ctx context.Context, cfg model.Config) (*Supervisor, error) {
	run, err := runner.New(cfg.Output.Dir, cfg.Tool.Binary, cfg.Tool.Args...)
	if err != nil {
		return nil, fmt.Errorf("initializing runner: %w", err)
	}

	supervisor := &Supervisor{
		runner: run,
		dir:    cfg.Output.Dir,
	}
	if cfg.Tool.RPCURL != nil {
		supervisor.rpcURL = *cfg.Tool.RPCURL
	}
	if cfg.Service.Parallel != nil {
		supervisor.parallel = *cfg.Service.Parallel
	}

	if cfg.Service.Schedule != nil {
		scheduler, err := newScheduler(ctx, cfg.Service.Schedule, func() {
			supervisor.refresh(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("refresh schedule failed: %w", err)
		}
		supervisor.scheduler = scheduler
	}

	return supervisor, nil
}

func (s *Supervisor) OutputDir() string {
	return s.dir
}

// Start starts the optional refresh scheduler. Submissions work without it.
func (s *Supervisor) Start() {
	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

// Close shuts the scheduler down and waits for all in-flight jobs.
func (s *Supervisor) Close(ctx context.Context) error {
	var err error
	if s.scheduler != nil {
		err = s.scheduler.Shutdown()
		if err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}
	s.wg.Wait()
	return err
}

// SubmitBatch fans a batch of blocks out to independent verifier processes
// and returns immediately. Outcomes are logged as they arrive, one job's
// failure never aborts its siblings. The caller learns about results by
// re-querying Jobs or reading the logs, there is no synchronous signal
// beyond "accepted".
func (s *Supervisor) SubmitBatch(ctx context.Context, blocks []uint64, rpcURL string) (uuid.UUID, error) {
	if len(blocks) == 0 {
		return uuid.Nil, model.ErrEmptyBatch
	}
	if rpcURL == "" {
		rpcURL = s.rpcURL
	}

	batch := uuid.New()
	// jobs outlive the submitting HTTP request
	ctx = context.WithoutCancel(ctx)
	ctx = log.ContextAttrs(ctx, slog.String("batch", batch.String()))

	slog.InfoContext(ctx, "batch accepted",
		"blocks", len(blocks), "dir", s.dir, "rpc_url", rpcURL)

	s.wg.Go(func() {
		for res, err := range parallel.Map(ctx, s.parallel, blocks,
			func(ctx context.Context, block uint64) (runner.Result, error) {
				return s.runOne(ctx, block, rpcURL)
			},
		) {
			if err != nil {
				slog.ErrorContext(ctx, "verification failed",
					"block", res.Block, "status", res.Status, "error", err)
				continue
			}
			slog.InfoContext(ctx, "verification succeeded",
				"block", res.Block, "elapsed", res.Stopped.Sub(res.Started).String())
		}
	})

	return batch, nil
}

func (s *Supervisor) runOne(ctx context.Context, block uint64, rpcURL string) (runner.Result, error) {
	monitoring.JobStarted()
	ch, err := s.runner.Start(ctx, block, rpcURL)
	if err != nil {
		monitoring.JobFinished(model.StatusError, 0)
		return runner.Result{Block: block, Status: model.StatusError, Err: err}, err
	}
	res := <-ch
	monitoring.JobFinished(res.Status, res.Stopped.Sub(res.Started))
	return res, res.Err
}

// Jobs returns the aggregated listing, served from the scheduled cache
// when one is warm, live from the output directory otherwise.
func (s *Supervisor) Jobs(ctx context.Context) ([]model.Job, error) {
	s.cacheMx.RLock()
	if s.cached {
		jobs := slices.Clone(s.cache)
		s.cacheMx.RUnlock()
		return jobs, nil
	}
	s.cacheMx.RUnlock()

	return results.List(ctx, s.dir)
}

func (s *Supervisor) refresh(ctx context.Context) {
	jobs, err := results.List(ctx, s.dir)
	if err != nil {
		slog.ErrorContext(ctx, "listing refresh failed", "error", err)
		return
	}
	s.cacheMx.Lock()
	s.cache = jobs
	s.cached = true
	s.cacheMx.Unlock()
	slog.DebugContext(ctx, "listing refreshed", "jobs", len(jobs))
}

func newScheduler(ctx context.Context, cfgp *model.Schedule, refreshFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, fmt.Errorf("service.schedule is nil")
	}
	cfg := *cfgp
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		err := model.ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(job, gocron.NewTask(refreshFunc))
	if err != nil {
		return nil, fmt.Errorf("adding refresh job: %w", err)
	}
	return scheduler, nil
}

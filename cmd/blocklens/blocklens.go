package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/blocklens/blocklens/internal/log"
	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/parallel"
	"github.com/blocklens/blocklens/internal/results"
	"github.com/blocklens/blocklens/internal/runner"
	"github.com/blocklens/blocklens/internal/service"
	"github.com/blocklens/blocklens/internal/web"

	"github.com/spf13/cobra"
)

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("blocklens",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	supervisor, err := service.NewSupervisor(ctx, config)
	if err != nil {
		return err
	}
	supervisor.Start()

	addr := ":8080"
	if config.Service.Listen != nil {
		addr = *config.Service.Listen
	}
	server := &http.Server{
		Addr:    addr,
		Handler: web.NewServer(supervisor).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	slog.InfoContext(ctx, "dashboard listening", "addr", addr, "dir", supervisor.OutputDir())

	select {
	case err := <-errCh:
		closeErr := supervisor.Close(ctx)
		return errors.Join(err, closeErr)
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	return errors.Join(err, supervisor.Close(shutdownCtx))
}

func doVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("blocklens",
		slog.String("cmd", "verify"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	blocks := make([]uint64, 0, len(args))
	for _, arg := range args {
		block, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", model.ErrBadBlock, arg)
		}
		blocks = append(blocks, block)
	}

	run, err := runner.New(config.Output.Dir, config.Tool.Binary, config.Tool.Args...)
	if err != nil {
		return err
	}

	rpcURL := flagRPCURL
	if rpcURL == "" && config.Tool.RPCURL != nil {
		rpcURL = *config.Tool.RPCURL
	}
	limit := 0
	if config.Service.Parallel != nil {
		limit = *config.Service.Parallel
	}

	var failed int
	for res, err := range parallel.Map(ctx, limit, blocks,
		func(ctx context.Context, block uint64) (runner.Result, error) {
			ch, err := run.Start(ctx, block, rpcURL)
			if err != nil {
				return runner.Result{Block: block, Status: model.StatusError}, err
			}
			res := <-ch
			return res, res.Err
		},
	) {
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "verification failed",
				"block", res.Block, "status", res.Status, "error", err)
			continue
		}
		slog.InfoContext(ctx, "verification succeeded",
			"block", res.Block, "elapsed", res.Stopped.Sub(res.Started).String())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d verifications failed", failed, len(blocks))
	}
	return nil
}

func doJobs(cmd *cobra.Command, _ []string) error {
	jobs, err := results.List(cmd.Context(), config.Output.Dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tSTATUS\tUPDATED")
	for _, j := range jobs {
		status := j.StatusText()
		if status == "" {
			status = "?"
		}
		updated := "-"
		if !j.UpdatedAt.IsZero() {
			updated = j.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", j.Block, status, updated)
	}
	return w.Flush()
}

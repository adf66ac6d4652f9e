package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gradloop/taskwell/internal/task"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the worker daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker(cmd.Context())
		},
	}
}

func (a *app) runWorker(ctx context.Context) error {
	queueStore, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	guard, closeGuard, err := a.openGuard(ctx)
	if err != nil {
		return err
	}
	defer closeGuard()

	registry, err := a.buildRegistry()
	if err != nil {
		return fmt.Errorf("failed to build handler registry: %w", err)
	}
	a.logger.Info("handler registry ready", "handlers", registry.Refs())

	pool := task.NewWorkerPool(
		queueStore,
		registry,
		task.NewLogReporter(a.logger),
		task.NopTenantBinder(),
		guard,
		task.WorkerPoolConfig{
			WorkerCount:            a.cfg.Worker.Count,
			Queues:                 a.cfg.Worker.Queues,
			PollInterval:           a.cfg.Worker.PollInterval,
			StuckTaskAge:           a.cfg.Worker.StuckTaskAge,
			StuckTaskCheckInterval: a.cfg.Worker.StuckTaskCheckInterval,
			GuardFailureMode:       task.GuardFailureMode(a.cfg.Idempotency.FailureMode),
			GuardDefaultTTL:        a.cfg.Idempotency.DefaultTTL,
		},
		a.logger,
	)
	pool.SetEnqueuer(task.NewEnqueuer(queueStore, registry, a.logger))

	if err := pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.newOpsRouter(queueStore),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("ops server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		a.logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		a.logger.Error("ops server failed", "error", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Worker.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	pool.Stop()

	a.logger.Info("worker shut down cleanly")
	return nil
}

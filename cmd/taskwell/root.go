package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gradloop/taskwell/internal/config"
	"github.com/gradloop/taskwell/internal/platform/logger"
)

// app carries the state shared by all subcommands after initialization.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "taskwell",
		Short:         "taskwell runs and inspects the background task queue",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			a.cfg = cfg
			a.logger = log

			log.Debug("configuration loaded",
				"queues", cfg.Worker.Queues,
				"worker_count", cfg.Worker.Count,
				"database_configured", cfg.Database.URL != "",
				"redis_configured", cfg.Redis.Addr != "")
			return nil
		},
	}

	root.AddCommand(
		newWorkerCmd(a),
		newMigrateCmd(a),
		newEnqueueCmd(a),
		newStatusCmd(a),
	)
	return root
}

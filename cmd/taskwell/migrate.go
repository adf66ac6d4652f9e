package main

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/gradloop/taskwell/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply queue-table migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMigrate(cmd, args[0])
		},
	}
	return cmd
}

func (a *app) runMigrate(cmd *cobra.Command, direction string) error {
	if a.cfg.Database.URL == "" {
		return fmt.Errorf("migrate requires a configured database URL")
	}

	db, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	switch direction {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	a.logger.Info("migration finished", "direction", direction)
	return nil
}

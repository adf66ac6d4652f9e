package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gradloop/taskwell/internal/task"
)

func newEnqueueCmd(a *app) *cobra.Command {
	var (
		queue       string
		handler     string
		payload     string
		tenantID    string
		delay       time.Duration
		timeout     time.Duration
		maxAttempts int
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a one-off task",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			queueStore, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			registry, err := a.buildRegistry()
			if err != nil {
				return err
			}

			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload must be valid JSON")
			}

			enqueuer := task.NewEnqueuer(queueStore, registry, a.logger)
			t, err := enqueuer.Enqueue(ctx, queue, handler, json.RawMessage(payload), task.Options{
				MaxAttempts: maxAttempts,
				Timeout:     timeout,
				Delay:       delay,
				Tags:        tags,
				TenantID:    tenantID,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %q (available at %s)\n",
				t.ID, t.Queue, t.AvailableAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "default", "target queue")
	cmd.Flags().StringVar(&handler, "handler", "core.echo", "registered handler reference")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant scope")
	cmd.Flags().DurationVar(&delay, "delay", 0, "postpone first eligibility")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout (default 5m)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (default 3)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "observability tags (repeatable)")
	return cmd
}

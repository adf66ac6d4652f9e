package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gradloop/taskwell/internal/events"
)

// EnqueueEventHandler bridges the events package to the queue: every
// emitted EnqueueRequest becomes a persisted task. This is the path
// producers use so they never touch the store or registry directly.
type EnqueueEventHandler struct {
	enqueuer *Enqueuer
	logger   *slog.Logger
}

// NewEnqueueEventHandler creates the bridge around an Enqueuer.
func NewEnqueueEventHandler(enqueuer *Enqueuer, logger *slog.Logger) *EnqueueEventHandler {
	return &EnqueueEventHandler{
		enqueuer: enqueuer,
		logger:   logger.With("component", "enqueue_event_handler"),
	}
}

// HandleEnqueue implements events.Handler.
func (h *EnqueueEventHandler) HandleEnqueue(ctx context.Context, req *events.EnqueueRequest) error {
	t, err := h.enqueuer.Enqueue(ctx, req.Queue, req.Handler, req.Payload, Options{
		Delay:    req.Delay,
		Tags:     req.Tags,
		TenantID: req.TenantID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task for request %s: %w", req.ID, err)
	}

	h.logger.Debug("enqueue request accepted",
		"request_id", req.ID,
		"task_id", t.ID,
		"queue", t.Queue,
		"handler", t.Handler)
	return nil
}

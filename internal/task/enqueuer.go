package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Enqueuer validation errors.
var (
	ErrEmptyQueue = errors.New("queue name cannot be empty")
)

// Enqueuer is the producer-facing entry point. It validates the handler
// reference against the registry at enqueue time, so a typo'd reference
// fails at the call site instead of surfacing later as a dead task.
type Enqueuer struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
	clock    func() time.Time
}

// NewEnqueuer creates an Enqueuer bound to the given store and registry.
func NewEnqueuer(store Store, registry *Registry, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "enqueuer"),
		clock:    time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (e *Enqueuer) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Enqueue builds a task from payload and opts and persists it. payload
// may be any JSON-serializable value or a pre-encoded json.RawMessage.
func (e *Enqueuer) Enqueue(ctx context.Context, queue, handler string, payload any, opts Options) (*Task, error) {
	if queue == "" {
		return nil, ErrEmptyQueue
	}
	if !e.registry.Known(handler) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, handler)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", handler, err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := opts.Backoff
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := e.clock()
	t := &Task{
		ID:          uuid.New(),
		Queue:       queue,
		Handler:     handler,
		Payload:     raw,
		TenantID:    opts.TenantID,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Timeout:     timeout,
		Tags:        opts.Tags,
		Status:      StatusPending,
		EnqueuedAt:  now,
		AvailableAt: now.Add(opts.Delay),
	}

	if err := e.store.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	e.logger.Debug("task enqueued",
		"task_id", t.ID,
		"queue", t.Queue,
		"handler", t.Handler,
		"available_at", t.AvailableAt,
		"tags", t.Tags)
	return t, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEmitter dispatches enqueue requests to handlers registered in
// the same process.
type InMemoryEmitter struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEmitter creates an emitter with no handlers registered.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	return &InMemoryEmitter{
		logger: logger.With("component", "enqueue_emitter"),
	}
}

// RegisterHandler adds a handler to receive emitted requests.
func (e *InMemoryEmitter) RegisterHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
	e.logger.Debug("registered enqueue handler", "handler_count", len(e.handlers))
}

// Emit publishes req to all registered handlers. Every handler sees the
// request even when an earlier one fails; the first error is returned.
func (e *InMemoryEmitter) Emit(ctx context.Context, req *EnqueueRequest) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for enqueue request",
			"request_id", req.ID,
			"handler", req.Handler)
		return nil
	}

	var firstErr error
	for i, h := range handlers {
		if err := h.HandleEnqueue(ctx, req); err != nil {
			e.logger.Error("enqueue handler failed",
				"error", err,
				"handler_index", i,
				"request_id", req.ID,
				"task_handler", req.Handler)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

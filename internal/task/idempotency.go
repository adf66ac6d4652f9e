package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Guard is a time-boxed duplicate-suppression window, not a lock: there
// is no release operation, markers simply expire. A legitimate re-send
// after TTL expiry is allowed and expected.
//
// Acquire sets the marker for key if absent and returns true; it returns
// false when the marker already exists (duplicate delivery). The backing
// store must be shared across worker processes (cache, Redis) because
// redelivery after an ambiguous timeout can land on a different worker.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// GuardFailureMode decides what Acquire means when the guard's backing
// store is unreachable.
type GuardFailureMode string

const (
	// FailOpen proceeds as if the marker was acquired, accepting a
	// possible duplicate side effect in exchange for availability.
	FailOpen GuardFailureMode = "fail_open"

	// FailClosed surfaces the store error so the attempt is retried
	// later instead of risking a duplicate.
	FailClosed GuardFailureMode = "fail_closed"
)

// GuardedAcquirer wraps a Guard with the configured failure mode and
// logging. The worker pool hands one to every Execution.
type GuardedAcquirer struct {
	guard  Guard
	mode   GuardFailureMode
	logger *slog.Logger
}

// NewGuardedAcquirer wraps guard with the given failure mode.
func NewGuardedAcquirer(guard Guard, mode GuardFailureMode, logger *slog.Logger) *GuardedAcquirer {
	if mode == "" {
		mode = FailOpen
	}
	return &GuardedAcquirer{guard: guard, mode: mode, logger: logger}
}

// Acquire applies the failure mode around the underlying guard.
func (g *GuardedAcquirer) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.guard.Acquire(ctx, key, ttl)
	if err == nil {
		return ok, nil
	}

	if g.mode == FailOpen {
		g.logger.Warn("idempotency guard unavailable, proceeding without dedup",
			"key", key,
			"error", err)
		return true, nil
	}
	return false, err
}

// MemoryGuard is an in-process Guard for tests and single-process
// deployments. Expired markers are pruned lazily on access.
type MemoryGuard struct {
	mu      sync.Mutex
	markers map[string]time.Time
	clock   func() time.Time
}

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		markers: make(map[string]time.Time),
		clock:   time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (g *MemoryGuard) SetClock(clock func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clock = clock
}

// Acquire implements Guard.
func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if expiry, ok := g.markers[key]; ok && now.Before(expiry) {
		return false, nil
	}
	g.markers[key] = now.Add(ttl)
	return true, nil
}

package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TenantBinder re-establishes tenant scope before a handler runs.
// Multi-tenant deployments implement this to load tenant configuration,
// switch database search paths, or refresh per-tenant credentials; the
// returned context is the one the handler executes under.
type TenantBinder interface {
	Bind(ctx context.Context, tenantID string) (context.Context, error)
}

// TenantBinderFunc adapts a function to the TenantBinder interface.
type TenantBinderFunc func(ctx context.Context, tenantID string) (context.Context, error)

// Bind calls f.
func (f TenantBinderFunc) Bind(ctx context.Context, tenantID string) (context.Context, error) {
	return f(ctx, tenantID)
}

// NopTenantBinder returns the context unchanged. Used by single-tenant
// deployments and tests.
func NopTenantBinder() TenantBinder {
	return TenantBinderFunc(func(ctx context.Context, _ string) (context.Context, error) {
		return ctx, nil
	})
}

// Execution is the per-attempt context handed to handlers. It threads
// tenant and trace identity explicitly instead of relying on ambient
// process state, and exposes the pool's idempotency guard and follow-up
// enqueue path.
type Execution struct {
	// Task is the task being executed. Handlers must treat it as
	// read-only.
	Task *Task

	// Attempt is the 1-based number of this execution attempt.
	Attempt int

	// TenantID mirrors Task.TenantID for convenience.
	TenantID string

	// TraceID correlates every log line and follow-up task produced by
	// this attempt.
	TraceID string

	// Logger is pre-scoped with task and attempt fields.
	Logger *slog.Logger

	guard     *GuardedAcquirer
	guardTTL  time.Duration
	enqueuer  FollowUpEnqueuer
	startedAt time.Time
	clock     func() time.Time
}

// FollowUpEnqueuer lets a handler enqueue causally-ordered follow-up
// tasks (fan-out). Implemented by Enqueuer.
type FollowUpEnqueuer interface {
	Enqueue(ctx context.Context, queue, handler string, payload any, opts Options) (*Task, error)
}

// AcquireOnce sets the idempotency marker for key if absent, returning
// true exactly once per TTL window. A false return means a duplicate
// delivery: the side effect guarded by key was already performed within
// the window and must be skipped. A ttl of zero applies the pool's
// configured default window.
//
// When the guard's backing store is unreachable the configured failure
// mode decides the answer: fail-open pretends the marker was acquired
// (possible duplicate, preferred for availability), fail-closed returns
// the store error so the handler can convert it into a transient
// failure.
func (e *Execution) AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if e.guard == nil {
		// No guard configured: every delivery looks like the first.
		return true, nil
	}
	if ttl <= 0 {
		ttl = e.guardTTL
	}
	return e.guard.Acquire(ctx, key, ttl)
}

// EnqueueFollowUp enqueues a child task. The follow-up inherits the
// parent's tenant scope unless opts overrides it, and is tagged with the
// parent task id so operators can walk the fan-out tree.
func (e *Execution) EnqueueFollowUp(ctx context.Context, queue, handler string, payload any, opts Options) (*Task, error) {
	if e.enqueuer == nil {
		return nil, fmt.Errorf("no enqueuer bound to execution of task %s", e.Task.ID)
	}
	if opts.TenantID == "" {
		opts.TenantID = e.TenantID
	}
	opts.Tags = append(opts.Tags, "parent:"+e.Task.ID.String())
	return e.enqueuer.Enqueue(ctx, queue, handler, payload, opts)
}

// Elapsed reports how long the attempt has been running, measured on
// the same clock the pool stamps startedAt with.
func (e *Execution) Elapsed() time.Duration {
	if e.clock == nil {
		return time.Since(e.startedAt)
	}
	return e.clock().Sub(e.startedAt)
}

func newTraceID() string {
	return uuid.NewString()
}

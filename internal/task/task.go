package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task in its queue.
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts is applied when enqueue options leave MaxAttempts unset.
const DefaultMaxAttempts = 3

// DefaultTimeout bounds a single execution attempt when options leave
// Timeout unset.
const DefaultTimeout = 5 * time.Minute

// Task is one unit of asynchronous work. The payload carries entity
// references by id rather than live objects, because the worker that
// eventually executes the task may run in a different process than the
// producer that enqueued it.
type Task struct {
	// ID uniquely identifies the task, assigned at enqueue time.
	ID uuid.UUID `json:"id"`

	// Queue names the channel the task waits on (e.g. "crm-retry",
	// "email-sending").
	Queue string `json:"queue"`

	// Handler is the registry reference of the handler that processes
	// this task.
	Handler string `json:"handler"`

	// Payload is opaque, JSON-serialized task data.
	Payload json.RawMessage `json:"payload"`

	// TenantID is the tenant scope the handler must be bound to before
	// execution. Empty for tenant-independent work.
	TenantID string `json:"tenant_id,omitempty"`

	// Attempt counts execution attempts started so far. It is zero until
	// the first claim and is incremented atomically by the store when a
	// worker claims the task.
	Attempt int `json:"attempt"`

	// MaxAttempts is the ceiling on execution attempts. Once reached the
	// task transitions to StatusFailed and is never re-enqueued
	// automatically.
	MaxAttempts int `json:"max_attempts"`

	// Backoff is the per-attempt delay schedule applied before a retry.
	// Attempts beyond the schedule length reuse the last entry.
	Backoff []time.Duration `json:"backoff"`

	// Timeout is the wall-clock budget for one execution attempt.
	Timeout time.Duration `json:"timeout"`

	// Tags carry observability metadata (entity ids involved, batch
	// names) surfaced in logs and failure reports.
	Tags []string `json:"tags,omitempty"`

	Status      Status    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	AvailableAt time.Time `json:"available_at"`
}

// Options configures a task at enqueue time. Zero values fall back to
// the package defaults.
type Options struct {
	// MaxAttempts overrides DefaultMaxAttempts.
	MaxAttempts int

	// Backoff overrides the default retry schedule (BackoffCRMSync).
	Backoff []time.Duration

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration

	// Delay postpones first eligibility by the given duration.
	Delay time.Duration

	// Tags are attached to the task for observability.
	Tags []string

	// TenantID scopes execution to a tenant.
	TenantID string
}

// UnmarshalPayload decodes the task payload into v.
func (t *Task) UnmarshalPayload(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// RemainingAttempts reports how many more execution attempts the task
// may start before permanent failure.
func (t *Task) RemainingAttempts() int {
	if n := t.MaxAttempts - t.Attempt; n > 0 {
		return n
	}
	return 0
}

// BackoffDelay returns the delay to apply before re-enqueueing after the
// given failed attempt (1-based). Attempts past the end of the schedule
// reuse the last entry; an empty schedule yields zero delay.
func (t *Task) BackoffDelay(attempt int) time.Duration {
	if len(t.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.Backoff) {
		idx = len(t.Backoff) - 1
	}
	return t.Backoff[idx]
}

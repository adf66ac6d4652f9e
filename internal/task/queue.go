package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by Store implementations.
var (
	// ErrNoTask means no queue had an eligible task at dequeue time.
	ErrNoTask = errors.New("no eligible task")

	// ErrTaskNotFound means the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")
)

// QueueStats is a point-in-time summary of one queue, surfaced by the
// status CLI and the ops endpoint.
type QueueStats struct {
	Queue      string `json:"queue"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}

// Store is the queue's backing store and the only synchronization point
// between worker processes; implementations must be safe for concurrent
// access from independent workers.
//
// A task is owned by the store until Dequeue claims it; ownership then
// rests with the claiming worker until it calls Reschedule (transient
// failure), MarkCompleted, or MarkFailed.
type Store interface {
	// Enqueue persists t and makes it eligible for execution no earlier
	// than t.AvailableAt.
	Enqueue(ctx context.Context, t *Task) error

	// Dequeue claims the oldest eligible pending task, servicing queues
	// in the priority order given. Claiming atomically moves the task to
	// StatusProcessing and increments its Attempt. Dequeue never returns
	// a task whose AvailableAt is in the future; when nothing is
	// eligible it returns ErrNoTask.
	Dequeue(ctx context.Context, queues []string) (*Task, error)

	// Reschedule hands a claimed task back for a delayed retry with the
	// given earliest execution time and failure note.
	Reschedule(ctx context.Context, id uuid.UUID, availableAt time.Time, lastError string) error

	// MarkCompleted records a successful (or skipped) attempt.
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// MarkFailed records permanent failure with an operator-readable
	// note. Failed tasks stay inspectable; they are never re-enqueued
	// automatically.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error

	// ResetStuck returns tasks stranded in StatusProcessing for longer
	// than olderThan back to StatusPending, reporting how many were
	// reset. Covers workers that died mid-attempt. A stranded task whose
	// attempts are already exhausted is marked failed instead, keeping
	// the attempt ceiling intact.
	ResetStuck(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats summarizes every known queue.
	Stats(ctx context.Context) ([]QueueStats, error)
}

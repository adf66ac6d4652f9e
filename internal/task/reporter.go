package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/gradloop/taskwell/internal/redact"
)

// FailureReporter records execution failures, distinct from normal
// completion logging. Transient reports fire on every retry-scheduled
// failure; permanent reports fire exactly once, when the task is
// declared dead.
type FailureReporter interface {
	ReportTransient(ctx context.Context, t *Task, cause error, nextAvailableAt time.Time)
	ReportPermanent(ctx context.Context, t *Task, cause error)
}

// LogReporter writes structured failure records through slog. Error text
// is scrubbed before logging: handler errors routinely embed provider
// URLs, credentials, and recipient addresses.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With("component", "failure_reporter")}
}

// ReportTransient implements FailureReporter.
func (r *LogReporter) ReportTransient(_ context.Context, t *Task, cause error, nextAvailableAt time.Time) {
	r.logger.Warn("task attempt failed, retry scheduled",
		"task_id", t.ID,
		"queue", t.Queue,
		"handler", t.Handler,
		"attempt", t.Attempt,
		"max_attempts", t.MaxAttempts,
		"next_available_at", nextAvailableAt,
		"tags", t.Tags,
		"error", redact.Error(cause))
}

// ReportPermanent implements FailureReporter.
func (r *LogReporter) ReportPermanent(_ context.Context, t *Task, cause error) {
	r.logger.Error("task permanently failed",
		"task_id", t.ID,
		"queue", t.Queue,
		"handler", t.Handler,
		"total_attempts", t.Attempt,
		"tags", t.Tags,
		"enqueued_at", t.EnqueuedAt,
		"error", redact.Error(cause))
}

// MultiReporter fans failure reports out to several reporters, e.g. the
// log reporter plus an activity-feed recorder.
type MultiReporter []FailureReporter

// ReportTransient implements FailureReporter.
func (m MultiReporter) ReportTransient(ctx context.Context, t *Task, cause error, nextAvailableAt time.Time) {
	for _, r := range m {
		r.ReportTransient(ctx, t, cause, nextAvailableAt)
	}
}

// ReportPermanent implements FailureReporter.
func (m MultiReporter) ReportPermanent(ctx context.Context, t *Task, cause error) {
	for _, r := range m {
		r.ReportPermanent(ctx, t, cause)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gradloop/taskwell/internal/platform/logger"
	"github.com/gradloop/taskwell/internal/store"
	"github.com/gradloop/taskwell/internal/task"
)

// TaskStore implements task.Store on PostgreSQL. Claiming uses
// FOR UPDATE SKIP LOCKED so independent worker processes never contend
// for or double-claim the same task.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a TaskStore on the given connection or
// transaction.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, queue, handler, payload, tenant_id, attempt, max_attempts,
	backoff_ms, timeout_ms, tags, status, last_error, enqueued_at, available_at`

// Enqueue implements task.Store.
func (s *TaskStore) Enqueue(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	backoff, tags, err := encodeSchedules(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, queue, handler, payload, tenant_id, attempt, max_attempts,
			backoff_ms, timeout_ms, tags, status, enqueued_at, available_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.Queue,
		t.Handler,
		[]byte(t.Payload),
		t.TenantID,
		t.Attempt,
		t.MaxAttempts,
		backoff,
		t.Timeout.Milliseconds(),
		tags,
		string(task.StatusPending),
		t.EnqueuedAt,
		t.AvailableAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID,
			"queue", t.Queue,
			"error", err)
		return MapError(err)
	}
	return nil
}

// Dequeue implements task.Store. The claim atomically moves the row to
// processing and increments its attempt counter; rows whose
// available_at is in the future are never eligible.
func (s *TaskStore) Dequeue(ctx context.Context, queues []string) (*task.Task, error) {
	var (
		query string
		args  []any
	)
	if len(queues) > 0 {
		query = `
			WITH next AS (
				SELECT id FROM tasks
				WHERE status = 'pending' AND available_at <= now() AND queue = ANY($1)
				ORDER BY array_position($1, queue), available_at, enqueued_at
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE tasks t
			SET status = 'processing', attempt = t.attempt + 1, updated_at = now()
			FROM next
			WHERE t.id = next.id
			RETURNING ` + prefixColumns("t.") + `
		`
		args = []any{queues}
	} else {
		query = `
			WITH next AS (
				SELECT id FROM tasks
				WHERE status = 'pending' AND available_at <= now()
				ORDER BY available_at, enqueued_at
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE tasks t
			SET status = 'processing', attempt = t.attempt + 1, updated_at = now()
			FROM next
			WHERE t.id = next.id
			RETURNING ` + prefixColumns("t.") + `
		`
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, task.ErrNoTask
		}
		return nil, MapError(err)
	}
	return t, nil
}

// Reschedule implements task.Store.
func (s *TaskStore) Reschedule(ctx context.Context, id uuid.UUID, availableAt time.Time, lastError string) error {
	query := `
		UPDATE tasks
		SET status = 'pending', available_at = $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status = 'processing'
	`
	return s.exec(ctx, query, availableAt, lastError, id)
}

// MarkCompleted implements task.Store.
func (s *TaskStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = 'completed', updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, query, id)
}

// MarkFailed implements task.Store.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE tasks
		SET status = 'failed', last_error = $1, updated_at = now()
		WHERE id = $2
	`
	return s.exec(ctx, query, lastError, id)
}

func (s *TaskStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

// ResetStuck implements task.Store. Rows stranded with no attempts left
// are failed in place so the attempt ceiling holds across crashes.
func (s *TaskStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `
		UPDATE tasks
		SET status = CASE WHEN attempt >= max_attempts THEN 'failed' ELSE 'pending' END,
			last_error = CASE WHEN attempt >= max_attempts
				THEN 'abandoned mid-attempt with no attempts remaining'
				ELSE 'reset after being stuck in processing state' END,
			available_at = CASE WHEN attempt >= max_attempts THEN available_at ELSE now() END,
			updated_at = now()
		WHERE status = 'processing' AND updated_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// Stats implements task.Store.
func (s *TaskStore) Stats(ctx context.Context) ([]task.QueueStats, error) {
	query := `
		SELECT queue, status, count(*)
		FROM tasks
		GROUP BY queue, status
		ORDER BY queue
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	byQueue := make(map[string]*task.QueueStats)
	var order []string
	for rows.Next() {
		var (
			queue  string
			status string
			count  int
		)
		if err := rows.Scan(&queue, &status, &count); err != nil {
			return nil, MapError(err)
		}
		st, ok := byQueue[queue]
		if !ok {
			st = &task.QueueStats{Queue: queue}
			byQueue[queue] = st
			order = append(order, queue)
		}
		switch task.Status(status) {
		case task.StatusPending:
			st.Pending = count
		case task.StatusProcessing:
			st.Processing = count
		case task.StatusCompleted:
			st.Completed = count
		case task.StatusFailed:
			st.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	stats := make([]task.QueueStats, 0, len(order))
	for _, queue := range order {
		stats = append(stats, *byQueue[queue])
	}
	return stats, nil
}

func prefixColumns(prefix string) string {
	return prefix + `id, ` + prefix + `queue, ` + prefix + `handler, ` + prefix + `payload, ` +
		prefix + `tenant_id, ` + prefix + `attempt, ` + prefix + `max_attempts, ` +
		prefix + `backoff_ms, ` + prefix + `timeout_ms, ` + prefix + `tags, ` +
		prefix + `status, ` + prefix + `last_error, ` + prefix + `enqueued_at, ` + prefix + `available_at`
}

// encodeSchedules serializes the backoff schedule (as milliseconds) and
// tags to JSONB columns.
func encodeSchedules(t *task.Task) ([]byte, []byte, error) {
	delays := make([]int64, len(t.Backoff))
	for i, d := range t.Backoff {
		delays[i] = d.Milliseconds()
	}
	backoff, err := json.Marshal(delays)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode backoff schedule: %w", err)
	}

	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	return backoff, encodedTags, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t         task.Task
		payload   []byte
		backoff   []byte
		timeoutMS int64
		tags      []byte
		status    string
		lastError sql.NullString
	)
	err := row.Scan(
		&t.ID,
		&t.Queue,
		&t.Handler,
		&payload,
		&t.TenantID,
		&t.Attempt,
		&t.MaxAttempts,
		&backoff,
		&timeoutMS,
		&tags,
		&status,
		&lastError,
		&t.EnqueuedAt,
		&t.AvailableAt,
	)
	if err != nil {
		return nil, err
	}

	t.Payload = json.RawMessage(payload)
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond
	t.Status = task.Status(status)
	t.LastError = lastError.String

	var delays []int64
	if err := json.Unmarshal(backoff, &delays); err != nil {
		return nil, fmt.Errorf("failed to decode backoff schedule: %w", err)
	}
	t.Backoff = make([]time.Duration, len(delays))
	for i, ms := range delays {
		t.Backoff[i] = time.Duration(ms) * time.Millisecond
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	return &t, nil
}

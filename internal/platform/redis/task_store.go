// Package redis implements the Redis queue store and idempotency guard
// for deployments that coordinate workers through a shared cache rather
// than Postgres.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gradloop/taskwell/internal/task"
	"github.com/redis/go-redis/v9"
)

// Key layout. Pending tasks sit in a per-queue list; delayed tasks wait
// in a per-queue sorted set scored by their availability time and are
// promoted on dequeue.
const (
	keyTask       = "taskwell:task:"       // + id -> task JSON
	keyPending    = "taskwell:pending:"    // + queue -> list of ids
	keyDelayed    = "taskwell:delayed:"    // + queue -> zset id/availableAt
	keyProcessing = "taskwell:processing:" // + queue -> zset id/claimedAt
	keyQueues     = "taskwell:queues"      // set of queue names
	keyCounter    = "taskwell:count:"      // + queue:status -> counter
)

// TaskStore implements task.Store on Redis.
type TaskStore struct {
	client *redis.Client
	clock  func() time.Time
}

// NewTaskStore creates a TaskStore on the given client.
func NewTaskStore(client *redis.Client) *TaskStore {
	return &TaskStore{client: client, clock: time.Now}
}

// Enqueue implements task.Store.
func (s *TaskStore) Enqueue(ctx context.Context, t *task.Task) error {
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, keyQueues, t.Queue).Err(); err != nil {
		return fmt.Errorf("failed to record queue name: %w", err)
	}

	if t.AvailableAt.After(s.clock()) {
		err := s.client.ZAdd(ctx, keyDelayed+t.Queue, redis.Z{
			Score:  float64(t.AvailableAt.UnixMilli()),
			Member: t.ID.String(),
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to add delayed task: %w", err)
		}
		return nil
	}

	if err := s.client.LPush(ctx, keyPending+t.Queue, t.ID.String()).Err(); err != nil {
		return fmt.Errorf("failed to push pending task: %w", err)
	}
	return nil
}

// Dequeue implements task.Store. Each poll first promotes delayed tasks
// whose availability time has passed, then claims from the head of the
// first non-empty pending list in priority order.
func (s *TaskStore) Dequeue(ctx context.Context, queues []string) (*task.Task, error) {
	if len(queues) == 0 {
		var err error
		queues, err = s.client.SMembers(ctx, keyQueues).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list queues: %w", err)
		}
	}

	now := s.clock()
	for _, queue := range queues {
		if err := s.promoteDelayed(ctx, queue, now); err != nil {
			return nil, err
		}

		id, err := s.client.RPop(ctx, keyPending+queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pop pending task: %w", err)
		}

		t, err := s.loadTask(ctx, id)
		if err != nil {
			return nil, err
		}

		t.Status = task.StatusProcessing
		t.Attempt++
		if err := s.saveTask(ctx, t); err != nil {
			return nil, err
		}
		err = s.client.ZAdd(ctx, keyProcessing+queue, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: id,
		}).Err()
		if err != nil {
			return nil, fmt.Errorf("failed to track processing task: %w", err)
		}
		return t, nil
	}
	return nil, task.ErrNoTask
}

// Reschedule implements task.Store.
func (s *TaskStore) Reschedule(ctx context.Context, id uuid.UUID, availableAt time.Time, lastError string) error {
	t, err := s.loadTask(ctx, id.String())
	if err != nil {
		return err
	}

	t.Status = task.StatusPending
	t.AvailableAt = availableAt
	t.LastError = lastError
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}

	if err := s.client.ZRem(ctx, keyProcessing+t.Queue, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to release processing task: %w", err)
	}
	err = s.client.ZAdd(ctx, keyDelayed+t.Queue, redis.Z{
		Score:  float64(availableAt.UnixMilli()),
		Member: id.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to delay task: %w", err)
	}
	return nil
}

// MarkCompleted implements task.Store.
func (s *TaskStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, task.StatusCompleted, "")
}

// MarkFailed implements task.Store.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return s.finish(ctx, id, task.StatusFailed, lastError)
}

func (s *TaskStore) finish(ctx context.Context, id uuid.UUID, status task.Status, lastError string) error {
	t, err := s.loadTask(ctx, id.String())
	if err != nil {
		return err
	}

	t.Status = status
	if lastError != "" {
		t.LastError = lastError
	}
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}

	if err := s.client.ZRem(ctx, keyProcessing+t.Queue, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to release processing task: %w", err)
	}
	counter := keyCounter + t.Queue + ":" + string(status)
	if err := s.client.Incr(ctx, counter).Err(); err != nil {
		return fmt.Errorf("failed to bump %s counter: %w", status, err)
	}
	return nil
}

// ResetStuck implements task.Store.
func (s *TaskStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	queues, err := s.client.SMembers(ctx, keyQueues).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list queues: %w", err)
	}

	cutoff := s.clock().Add(-olderThan)
	reset := 0
	for _, queue := range queues {
		ids, err := s.client.ZRangeByScore(ctx, keyProcessing+queue, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
		}).Result()
		if err != nil {
			return reset, fmt.Errorf("failed to scan processing tasks: %w", err)
		}

		for _, id := range ids {
			t, err := s.loadTask(ctx, id)
			if err != nil {
				if errors.Is(err, task.ErrTaskNotFound) {
					_ = s.client.ZRem(ctx, keyProcessing+queue, id).Err()
					continue
				}
				return reset, err
			}

			if t.Attempt >= t.MaxAttempts {
				if err := s.MarkFailed(ctx, t.ID, "abandoned mid-attempt with no attempts remaining"); err != nil {
					return reset, err
				}
			} else {
				if err := s.Reschedule(ctx, t.ID, s.clock(), "reset after being stuck in processing state"); err != nil {
					return reset, err
				}
			}
			reset++
		}
	}
	return reset, nil
}

// Stats implements task.Store.
func (s *TaskStore) Stats(ctx context.Context) ([]task.QueueStats, error) {
	queues, err := s.client.SMembers(ctx, keyQueues).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	stats := make([]task.QueueStats, 0, len(queues))
	for _, queue := range queues {
		pending, err := s.client.LLen(ctx, keyPending+queue).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count pending tasks: %w", err)
		}
		delayed, err := s.client.ZCard(ctx, keyDelayed+queue).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count delayed tasks: %w", err)
		}
		processing, err := s.client.ZCard(ctx, keyProcessing+queue).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count processing tasks: %w", err)
		}
		completed, err := s.counter(ctx, queue, task.StatusCompleted)
		if err != nil {
			return nil, err
		}
		failed, err := s.counter(ctx, queue, task.StatusFailed)
		if err != nil {
			return nil, err
		}

		stats = append(stats, task.QueueStats{
			Queue:      queue,
			Pending:    int(pending + delayed),
			Processing: int(processing),
			Completed:  completed,
			Failed:     failed,
		})
	}
	return stats, nil
}

func (s *TaskStore) counter(ctx context.Context, queue string, status task.Status) (int, error) {
	val, err := s.client.Get(ctx, keyCounter+queue+":"+string(status)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", status, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s counter: %w", status, err)
	}
	return n, nil
}

// promoteDelayed moves delayed tasks whose availability time has passed
// onto the pending list.
func (s *TaskStore) promoteDelayed(ctx context.Context, queue string, now time.Time) error {
	ids, err := s.client.ZRangeByScore(ctx, keyDelayed+queue, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan delayed tasks: %w", err)
	}

	for _, id := range ids {
		if err := s.client.LPush(ctx, keyPending+queue, id).Err(); err != nil {
			return fmt.Errorf("failed to promote delayed task: %w", err)
		}
		if err := s.client.ZRem(ctx, keyDelayed+queue, id).Err(); err != nil {
			return fmt.Errorf("failed to remove promoted task: %w", err)
		}
	}
	return nil
}

func (s *TaskStore) saveTask(ctx context.Context, t *task.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
	}
	if err := s.client.Set(ctx, keyTask+t.ID.String(), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *TaskStore) loadTask(ctx context.Context, id string) (*task.Task, error) {
	raw, err := s.client.Get(ctx, keyTask+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}

	var t task.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	return &t, nil
}

package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradloop/taskwell/internal/store"
	"github.com/gradloop/taskwell/internal/task"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*store.MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := store.NewMemoryStore()
	s.SetClock(clock.Now)
	return s, clock
}

func makeTask(queue string, availableAt time.Time) *task.Task {
	return &task.Task{
		ID:          uuid.New(),
		Queue:       queue,
		Handler:     "test.handler",
		Payload:     []byte(`{}`),
		MaxAttempts: 3,
		Backoff:     task.DefaultBackoff,
		Timeout:     time.Minute,
		Status:      task.StatusPending,
		EnqueuedAt:  availableAt,
		AvailableAt: availableAt,
	}
}

func TestMemoryStore_FIFOWithinQueue(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	first := makeTask("default", clock.Now())
	second := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, first))
	require.NoError(t, s.Enqueue(ctx, second))

	got, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.Dequeue(ctx, []string{"default"})
	assert.ErrorIs(t, err, task.ErrNoTask)
}

func TestMemoryStore_DequeueIncrementsAttempt(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	tk := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, tk))

	got, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, task.StatusProcessing, got.Status)

	// The stored copy reflects the claim too.
	stored := s.Snapshot(tk.ID)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Attempt)
	assert.Equal(t, task.StatusProcessing, stored.Status)
}

func TestMemoryStore_AvailabilityGate(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	delayed := makeTask("default", clock.Now().Add(10*time.Minute))
	ready := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, delayed))
	require.NoError(t, s.Enqueue(ctx, ready))

	// The delayed task was enqueued first but the ready one is claimed.
	got, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, ready.ID, got.ID)

	_, err = s.Dequeue(ctx, []string{"default"})
	assert.ErrorIs(t, err, task.ErrNoTask)

	clock.Advance(10 * time.Minute)
	got, err = s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, delayed.ID, got.ID)
}

func TestMemoryStore_QueuePriorityOrder(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	low := makeTask("digest", clock.Now())
	high := makeTask("crm", clock.Now())
	require.NoError(t, s.Enqueue(ctx, low))
	require.NoError(t, s.Enqueue(ctx, high))

	// "crm" is listed first, so it drains before "digest".
	got, err := s.Dequeue(ctx, []string{"crm", "digest"})
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)

	got, err = s.Dequeue(ctx, []string{"crm", "digest"})
	require.NoError(t, err)
	assert.Equal(t, low.ID, got.ID)
}

func TestMemoryStore_Reschedule(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	tk := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, tk))

	_, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)

	retryAt := clock.Now().Add(5 * time.Minute)
	require.NoError(t, s.Reschedule(ctx, tk.ID, retryAt, "crm endpoint unavailable"))

	stored := s.Snapshot(tk.ID)
	require.NotNil(t, stored)
	assert.Equal(t, task.StatusPending, stored.Status)
	assert.Equal(t, retryAt, stored.AvailableAt)
	assert.Equal(t, "crm endpoint unavailable", stored.LastError)

	// Not claimable until the retry time passes; attempt keeps counting.
	_, err = s.Dequeue(ctx, []string{"default"})
	assert.ErrorIs(t, err, task.ErrNoTask)

	clock.Advance(5 * time.Minute)
	got, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempt)
}

func TestMemoryStore_RescheduleUnknownTask(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	err := s.Reschedule(context.Background(), uuid.New(), clock.Now(), "")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestMemoryStore_TerminalMarks(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	done := makeTask("default", clock.Now())
	dead := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, done))
	require.NoError(t, s.Enqueue(ctx, dead))

	_, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	_, err = s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(ctx, done.ID))
	require.NoError(t, s.MarkFailed(ctx, dead.ID, "invalid contact payload"))

	assert.Equal(t, task.StatusCompleted, s.Snapshot(done.ID).Status)
	failed := s.Snapshot(dead.ID)
	assert.Equal(t, task.StatusFailed, failed.Status)
	assert.Equal(t, "invalid contact payload", failed.LastError)

	// Terminal tasks never come back out of the queue.
	_, err = s.Dequeue(ctx, []string{"default"})
	assert.ErrorIs(t, err, task.ErrNoTask)
}

func TestMemoryStore_ResetStuck(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	recoverable := makeTask("default", clock.Now())
	exhausted := makeTask("default", clock.Now())
	exhausted.MaxAttempts = 1
	fresh := makeTask("default", clock.Now().Add(30*time.Minute))
	require.NoError(t, s.Enqueue(ctx, recoverable))
	require.NoError(t, s.Enqueue(ctx, exhausted))
	require.NoError(t, s.Enqueue(ctx, fresh))

	_, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	_, err = s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)

	// Both claimed tasks sit in processing past the cutoff.
	clock.Advance(20 * time.Minute)
	n, err := s.ResetStuck(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := s.Snapshot(recoverable.ID)
	assert.Equal(t, task.StatusPending, got.Status, "attempts remain, so the task is retried")
	assert.Equal(t, 1, got.Attempt)

	got = s.Snapshot(exhausted.ID)
	assert.Equal(t, task.StatusFailed, got.Status, "no attempts remain, so the task is failed")
	assert.NotEmpty(t, got.LastError)

	// The recovered task is claimable again, ahead of the delayed one.
	clock.Advance(11 * time.Minute)
	claimed, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, recoverable.ID, claimed.ID)
	assert.Equal(t, 2, claimed.Attempt)

	claimed, err = s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, claimed.ID)

	// Recently claimed tasks stay untouched.
	n, err = s.ResetStuck(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_Stats(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(ctx, makeTask("crm", clock.Now())))
	}
	emailDone := makeTask("email", clock.Now())
	require.NoError(t, s.Enqueue(ctx, emailDone))

	_, err := s.Dequeue(ctx, []string{"crm"})
	require.NoError(t, err)
	_, err = s.Dequeue(ctx, []string{"email"})
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, emailDone.ID))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, task.QueueStats{Queue: "crm", Pending: 2, Processing: 1}, stats[0])
	assert.Equal(t, task.QueueStats{Queue: "email", Completed: 1}, stats[1])
}

func TestMemoryStore_DuplicateEnqueueRejected(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	tk := makeTask("default", clock.Now())
	require.NoError(t, s.Enqueue(ctx, tk))
	assert.Error(t, s.Enqueue(ctx, tk))
}

func TestMemoryStore_DequeueReturnsCopies(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	tk := makeTask("default", clock.Now())
	tk.Tags = []string{"crm"}
	require.NoError(t, s.Enqueue(ctx, tk))

	got, err := s.Dequeue(ctx, []string{"default"})
	require.NoError(t, err)
	got.Tags[0] = "mutated"
	got.Payload[0] = 'X'

	stored := s.Snapshot(tk.ID)
	assert.Equal(t, []string{"crm"}, stored.Tags)
	assert.Equal(t, []byte(`{}`), []byte(stored.Payload))
}

func TestMemoryStore_ConcurrentDequeueClaimsOnce(t *testing.T) {
	t.Parallel()

	s, clock := newStore(t)
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, s.Enqueue(ctx, makeTask("default", clock.Now())))
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := s.Dequeue(ctx, []string{"default"})
				if err != nil {
					return
				}
				mu.Lock()
				seen[got.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, fmt.Sprintf("task %s claimed more than once", id))
	}
}

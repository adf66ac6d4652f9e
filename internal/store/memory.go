package store

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gradloop/taskwell/internal/task"
)

// MemoryStore is an in-process task.Store backed by per-queue heaps
// ordered by availability time. It powers tests and embedded
// single-process deployments; multi-process deployments use the
// Postgres or Redis stores.
type MemoryStore struct {
	mu           sync.Mutex
	tasks        map[uuid.UUID]*task.Task
	queues       map[string]*readyHeap
	processingAt map[uuid.UUID]time.Time
	clock        func() time.Time
	seq          uint64
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:        make(map[uuid.UUID]*task.Task),
		queues:       make(map[string]*readyHeap),
		processingAt: make(map[uuid.UUID]time.Time),
		clock:        time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Enqueue implements task.Store.
func (s *MemoryStore) Enqueue(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("task %s already enqueued", t.ID)
	}

	stored := cloneTask(t)
	stored.Status = task.StatusPending
	s.tasks[t.ID] = stored
	s.push(stored)
	return nil
}

// Dequeue implements task.Store. Queues are serviced in the priority
// order given; an empty list services every known queue in name order.
func (s *MemoryStore) Dequeue(ctx context.Context, queues []string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(queues) == 0 {
		queues = s.queueNames()
	}

	now := s.clock()
	for _, name := range queues {
		h, ok := s.queues[name]
		if !ok {
			continue
		}
		for h.Len() > 0 {
			top := (*h)[0]
			stored, ok := s.tasks[top.id]
			if !ok || stored.Status != task.StatusPending {
				// Entry went stale via Reschedule or a terminal mark.
				heap.Pop(h)
				continue
			}
			if stored.AvailableAt.After(now) {
				break
			}

			heap.Pop(h)
			stored.Status = task.StatusProcessing
			stored.Attempt++
			s.processingAt[stored.ID] = now
			return cloneTask(stored), nil
		}
	}
	return nil, task.ErrNoTask
}

// Reschedule implements task.Store.
func (s *MemoryStore) Reschedule(_ context.Context, id uuid.UUID, availableAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[id]
	if !ok {
		return task.ErrTaskNotFound
	}
	stored.Status = task.StatusPending
	stored.AvailableAt = availableAt
	stored.LastError = lastError
	delete(s.processingAt, id)
	s.push(stored)
	return nil
}

// MarkCompleted implements task.Store.
func (s *MemoryStore) MarkCompleted(_ context.Context, id uuid.UUID) error {
	return s.finish(id, task.StatusCompleted, "")
}

// MarkFailed implements task.Store.
func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return s.finish(id, task.StatusFailed, lastError)
}

func (s *MemoryStore) finish(id uuid.UUID, status task.Status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[id]
	if !ok {
		return task.ErrTaskNotFound
	}
	stored.Status = status
	if lastError != "" {
		stored.LastError = lastError
	}
	delete(s.processingAt, id)
	return nil
}

// ResetStuck implements task.Store.
func (s *MemoryStore) ResetStuck(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	reset := 0
	for id, since := range s.processingAt {
		if now.Sub(since) < olderThan {
			continue
		}
		stored, ok := s.tasks[id]
		if !ok {
			delete(s.processingAt, id)
			continue
		}
		if stored.Attempt >= stored.MaxAttempts {
			stored.Status = task.StatusFailed
			stored.LastError = "abandoned mid-attempt with no attempts remaining"
		} else {
			stored.Status = task.StatusPending
			stored.AvailableAt = now
			stored.LastError = "reset after being stuck in processing state"
			s.push(stored)
		}
		delete(s.processingAt, id)
		reset++
	}
	return reset, nil
}

// Stats implements task.Store.
func (s *MemoryStore) Stats(_ context.Context) ([]task.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQueue := make(map[string]*task.QueueStats)
	for _, t := range s.tasks {
		st, ok := byQueue[t.Queue]
		if !ok {
			st = &task.QueueStats{Queue: t.Queue}
			byQueue[t.Queue] = st
		}
		switch t.Status {
		case task.StatusPending:
			st.Pending++
		case task.StatusProcessing:
			st.Processing++
		case task.StatusCompleted:
			st.Completed++
		case task.StatusFailed:
			st.Failed++
		}
	}

	stats := make([]task.QueueStats, 0, len(byQueue))
	for _, st := range byQueue {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Queue < stats[j].Queue })
	return stats, nil
}

// Snapshot returns a copy of the stored task, or nil if unknown. Used by
// tests and operator tooling; not part of task.Store.
func (s *MemoryStore) Snapshot(id uuid.UUID) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return cloneTask(stored)
}

// push must be called with the lock held.
func (s *MemoryStore) push(t *task.Task) {
	h, ok := s.queues[t.Queue]
	if !ok {
		h = &readyHeap{}
		s.queues[t.Queue] = h
	}
	s.seq++
	heap.Push(h, readyItem{id: t.ID, availableAt: t.AvailableAt, seq: s.seq})
}

// queueNames must be called with the lock held.
func (s *MemoryStore) queueNames() []string {
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneTask(t *task.Task) *task.Task {
	c := *t
	if t.Payload != nil {
		c.Payload = append([]byte(nil), t.Payload...)
	}
	if t.Backoff != nil {
		c.Backoff = append([]time.Duration(nil), t.Backoff...)
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	return &c
}

// readyItem orders pending tasks by availability, then enqueue order.
type readyItem struct {
	id          uuid.UUID
	availableAt time.Time
	seq         uint64
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].availableAt.Equal(h[j].availableAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].availableAt.Before(h[j].availableAt)
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(readyItem)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

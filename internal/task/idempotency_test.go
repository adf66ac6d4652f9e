package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradloop/taskwell/internal/task"
)

func TestMemoryGuard_Acquire(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	guard := task.NewMemoryGuard()
	guard.SetClock(clock.Now)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "sequence:42:recipient:7", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "first acquire wins")

	ok, err = guard.Acquire(ctx, "sequence:42:recipient:7", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "marker still held")

	// A different key is an independent marker.
	ok, err = guard.Acquire(ctx, "sequence:42:recipient:8", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	// After the TTL the marker expires and a re-send is legitimate.
	clock.Advance(time.Hour + time.Second)
	ok, err = guard.Acquire(ctx, "sequence:42:recipient:7", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

type erringGuard struct {
	err error
}

func (g erringGuard) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, g.err
}

func TestGuardedAcquirer_FailureModes(t *testing.T) {
	t.Parallel()

	storeDown := errors.New("guard store unreachable")
	ctx := context.Background()

	t.Run("fail open proceeds on store error", func(t *testing.T) {
		t.Parallel()
		acq := task.NewGuardedAcquirer(erringGuard{err: storeDown}, task.FailOpen, testLogger())

		ok, err := acq.Acquire(ctx, "digest:2026-08", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("fail closed surfaces store error", func(t *testing.T) {
		t.Parallel()
		acq := task.NewGuardedAcquirer(erringGuard{err: storeDown}, task.FailClosed, testLogger())

		ok, err := acq.Acquire(ctx, "digest:2026-08", time.Minute)
		assert.ErrorIs(t, err, storeDown)
		assert.False(t, ok)
	})

	t.Run("healthy guard passes results through", func(t *testing.T) {
		t.Parallel()
		acq := task.NewGuardedAcquirer(task.NewMemoryGuard(), task.FailClosed, testLogger())

		ok, err := acq.Acquire(ctx, "digest:2026-09", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = acq.Acquire(ctx, "digest:2026-09", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

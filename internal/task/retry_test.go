package task_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gradloop/taskwell/internal/task"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	schedule := []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}
	failure := errors.New("provider 503")

	newTask := func(attempt, maxAttempts int) *task.Task {
		return &task.Task{Attempt: attempt, MaxAttempts: maxAttempts, Backoff: schedule}
	}

	t.Run("success completes", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(1, 3), task.Succeed())
		assert.Equal(t, task.DecisionComplete, v.Decision)
	})

	t.Run("skip completes", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(1, 3), task.Skip("entity gone"))
		assert.Equal(t, task.DecisionComplete, v.Decision)
	})

	t.Run("transient failure schedules the attempt's delay", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(1, 3), task.Retry(failure))
		assert.Equal(t, task.DecisionRetry, v.Decision)
		assert.Equal(t, now.Add(60*time.Second), v.AvailableAt)

		v = task.Decide(now, newTask(2, 3), task.Retry(failure))
		assert.Equal(t, now.Add(300*time.Second), v.AvailableAt)
	})

	t.Run("attempts beyond the schedule reuse the last delay", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(4, 10), task.Retry(failure))
		assert.Equal(t, task.DecisionRetry, v.Decision)
		assert.Equal(t, now.Add(900*time.Second), v.AvailableAt)
	})

	t.Run("exhausted attempts fail permanently", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(3, 3), task.Retry(failure))
		assert.Equal(t, task.DecisionFail, v.Decision)
		assert.Equal(t, failure, v.Err)
	})

	t.Run("explicit permanent failure overrides remaining attempts", func(t *testing.T) {
		t.Parallel()
		v := task.Decide(now, newTask(1, 5), task.Fail(failure))
		assert.Equal(t, task.DecisionFail, v.Decision)
	})
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tsk := &task.Task{Backoff: []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}}
	assert.Equal(t, 30*time.Second, tsk.BackoffDelay(1))
	assert.Equal(t, 2*time.Minute, tsk.BackoffDelay(2))
	assert.Equal(t, 5*time.Minute, tsk.BackoffDelay(3))
	assert.Equal(t, 5*time.Minute, tsk.BackoffDelay(7), "past the schedule end the last entry repeats")

	empty := &task.Task{}
	assert.Equal(t, time.Duration(0), empty.BackoffDelay(1))
}

func TestTotalRetryWindow(t *testing.T) {
	t.Parallel()

	// Three attempts with the CRM schedule wait 60s then 300s: six
	// minutes of scheduled delay before permanent failure.
	window := task.TotalRetryWindow(3, []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second})
	assert.Equal(t, 360*time.Second, window)

	// The long-recovery preset bounds total retry time to a few hours.
	window = task.TotalRetryWindow(5, task.BackoffLongRecovery)
	assert.Equal(t, 110*time.Minute, window)

	assert.Equal(t, time.Duration(0), task.TotalRetryWindow(1, task.BackoffFastExternal))
}

func TestPresetSchedules(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}, task.BackoffFastExternal)
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}, task.BackoffCRMSync)
	assert.Len(t, task.BackoffLongRecovery, 5)
	assert.Equal(t, 2*time.Hour, task.BackoffLongRecovery[4])
}

package task_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradloop/taskwell/internal/task"
)

func noopHandler() task.Handler {
	return task.HandlerFunc(func(_ context.Context, _ *task.Execution) task.Result {
		return task.Succeed()
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := task.NewRegistry()
	require.NoError(t, r.Register("crm.sync", noopHandler()))

	t.Run("duplicate reference rejected", func(t *testing.T) {
		t.Parallel()
		err := r.Register("crm.sync", noopHandler())
		assert.ErrorIs(t, err, task.ErrDuplicateHandler)
	})

	t.Run("empty reference rejected", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, r.Register("", noopHandler()))
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, r.Register("crm.other", nil))
	})
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	r := task.NewRegistry()
	require.NoError(t, r.Register("email.digest", noopHandler()))

	h, err := r.Resolve("email.digest")
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = r.Resolve("email.nope")
	assert.ErrorIs(t, err, task.ErrUnknownHandler)
	assert.False(t, r.Known("email.nope"))
	assert.True(t, r.Known("email.digest"))
}

func TestRegistry_Refs(t *testing.T) {
	t.Parallel()

	r := task.NewRegistry()
	require.NoError(t, r.Register("b.second", noopHandler()))
	require.NoError(t, r.Register("a.first", noopHandler()))

	assert.Equal(t, []string{"a.first", "b.second"}, r.Refs())
}

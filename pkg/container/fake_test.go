package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
)

func TestFakeSucceedsReachesTerminatedWithZeroExit(t *testing.T) {
	f := NewFake()
	f.RunFor = time.Millisecond
	ctx := context.Background()

	id, err := f.Create(ctx, "worker-0", "image", nil, 1, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := f.Status(ctx, id)
		require.NoError(t, err)
		return st.State == api.ContainerStateTerminated
	}, time.Second, time.Millisecond)

	st, err := f.Status(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)
}

func TestFakeFailsReachesTerminatedWithNonZeroExit(t *testing.T) {
	f := NewFake()
	f.RunFor = time.Millisecond
	f.Scripts["worker-1"] = FakeFails
	ctx := context.Background()

	id, err := f.Create(ctx, "worker-1", "image", nil, 1, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := f.Status(ctx, id)
		return st.State == api.ContainerStateTerminated
	}, time.Second, time.Millisecond)

	st, _ := f.Status(ctx, id)
	require.NotNil(t, st.ExitCode)
	assert.NotEqual(t, 0, *st.ExitCode)
}

func TestFakeFailsToStart(t *testing.T) {
	f := NewFake()
	f.Scripts["worker-2"] = FakeFailsToStart
	_, err := f.Create(context.Background(), "worker-2", "image", nil, 1, 1)
	require.Error(t, err)
}

func TestFakeThrottledThenSucceeds(t *testing.T) {
	f := NewFake()
	f.RunFor = time.Millisecond
	f.Scripts["worker-3"] = FakeThrottledThenSucceeds
	ctx := context.Background()

	_, err := f.Create(ctx, "worker-3", "image", nil, 1, 1)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())

	id, err := f.Create(ctx, "worker-3", "image", nil, 1, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestFakeDeleteRemovesGroup(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	id, err := f.Create(ctx, "worker-4", "image", nil, 1, 1)
	require.NoError(t, err)
	assert.True(t, f.Exists(id))

	require.NoError(t, f.Delete(ctx, id))
	assert.False(t, f.Exists(id))

	st, err := f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.ContainerStateUnknown, st.State)
}

func TestFakeHangsNeverTerminates(t *testing.T) {
	f := NewFake()
	f.Scripts["worker-5"] = FakeHangs
	f.RunFor = time.Millisecond
	ctx := context.Background()
	id, err := f.Create(ctx, "worker-5", "image", nil, 1, 1)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	st, err := f.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, api.ContainerStateRunning, st.State)
}

package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "ns", "run1/summary_0.json", []byte("hello")))

	data, err := m.Get(ctx, "ns", "run1/summary_0.json")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestMemoryGetMissingReturnsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "ns", "missing")
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrBlobNotFound, apiErr.Code)
}

func TestMemoryPutOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "ns", "k", []byte("v1")))
	require.NoError(t, m.Put(ctx, "ns", "k", []byte("v2")))

	data, err := m.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestMemoryListLexicographicPrefix(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	names := []string{"run1/summary_2.json", "run1/summary_0.json", "run1/summary_1.json", "run2/summary_0.json"}
	for _, n := range names {
		require.NoError(t, m.Put(ctx, "ns", n, []byte("x")))
	}

	got, err := m.List(ctx, "ns", "run1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run1/summary_0.json", "run1/summary_1.json", "run1/summary_2.json"}, got)
}

func TestMemoryExists(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ok, err := m.Exists(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "ns", "k", []byte("v")))
	ok, err = m.Exists(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryNamespaceIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "ns-a", "k", []byte("a")))
	require.NoError(t, m.Put(ctx, "ns-b", "k", []byte("b")))

	a, err := m.Get(ctx, "ns-a", "k")
	require.NoError(t, err)
	b, err := m.Get(ctx, "ns-b", "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_ = m.Put(ctx, "ns", "k", []byte{byte(i)})
			_, _ = m.Get(ctx, "ns", "k")
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}

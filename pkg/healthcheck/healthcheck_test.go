package healthcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/blob"
	"github.com/loadforge/loadforge/pkg/container"
)

type unreachableBlob struct{}

func (unreachableBlob) Put(context.Context, string, string, []byte) error {
	return api.NewError(api.ErrBlobUnavailable, "blob store unreachable", nil)
}
func (unreachableBlob) Get(context.Context, string, string) ([]byte, error) {
	return nil, api.NewError(api.ErrBlobUnavailable, "blob store unreachable", nil)
}
func (unreachableBlob) List(context.Context, string, string) ([]string, error) { return nil, nil }
func (unreachableBlob) Exists(context.Context, string, string) (bool, error)   { return false, nil }

type unreachableContainer struct{}

func (unreachableContainer) Create(context.Context, string, string, map[string]string, float64, float64) (string, error) {
	return "", api.NewError(api.ErrProviderUnavailable, "provider unreachable", nil)
}
func (unreachableContainer) Status(context.Context, string) (api.ContainerStatus, error) {
	return api.ContainerStatus{}, api.NewError(api.ErrProviderUnavailable, "provider unreachable", nil)
}
func (unreachableContainer) Delete(context.Context, string) error { return nil }
func (unreachableContainer) Logs(context.Context, string) ([]byte, error) { return nil, nil }

func TestCheckReportsHealthyWhenBothProvidersRespond(t *testing.T) {
	c := New(container.NewFake(), blob.NewMemory())
	res := c.Check(context.Background())

	require.True(t, res.OK)
	assert.True(t, res.Container.OK)
	assert.True(t, res.Blob.OK)
}

func TestCheckReportsBlobFailureSeparatelyFromContainer(t *testing.T) {
	c := New(container.NewFake(), unreachableBlob{})
	res := c.Check(context.Background())

	assert.False(t, res.OK)
	assert.True(t, res.Container.OK)
	assert.False(t, res.Blob.OK)
	assert.NotEmpty(t, res.Blob.Error)
}

func TestCheckReportsContainerFailureSeparatelyFromBlob(t *testing.T) {
	c := New(unreachableContainer{}, blob.NewMemory())
	res := c.Check(context.Background())

	assert.False(t, res.OK)
	assert.False(t, res.Container.OK)
	assert.True(t, res.Blob.OK)
	assert.NotEmpty(t, res.Container.Error)
}

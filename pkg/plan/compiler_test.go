package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
)

func validConfig() Config {
	return Config{
		TargetURL:       "https://example.com/checkout",
		TestKind:        "protocol",
		TotalVUs:        10,
		Duration:        "2m",
		PerWorkerVUs:    5,
		WorkerResources: api.WorkerResources{CPUCores: 1, MemoryGiB: 2},
		WorkerImageRef:  "registry.example.com/loadforge-worker:v1",
		BlobNamespace:   "loadforge-results",
	}
}

func TestCompileValid(t *testing.T) {
	p, err := Compile(validConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, p.RunID)
	assert.Equal(t, 10, p.TotalVUs)
	assert.Equal(t, api.TestKindProtocol, p.TestKind)
	assert.Equal(t, "2m0s", p.Duration.String())
}

func TestCompileGeneratesUniqueRunIDs(t *testing.T) {
	p1, err := Compile(validConfig())
	require.NoError(t, err)
	p2, err := Compile(validConfig())
	require.NoError(t, err)
	assert.NotEqual(t, p1.RunID, p2.RunID)
}

func TestCompileRejectsBadURL(t *testing.T) {
	cfg := validConfig()
	cfg.TargetURL = "not-a-url"
	_, err := Compile(cfg)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrInvalidPlan, apiErr.Code)
	assert.NotEmpty(t, apiErr.Causes)
}

func TestCompileRejectsZeroVUs(t *testing.T) {
	cfg := validConfig()
	cfg.TotalVUs = 0
	_, err := Compile(cfg)
	require.Error(t, err)
}

func TestCompileRejectsBadDurationFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Duration = "2 minutes"
	_, err := Compile(cfg)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	found := false
	for _, c := range apiErr.Causes {
		if c == "duration must match ^\\d+[smhd]$" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileReportsEveryFailingConstraint(t *testing.T) {
	cfg := Config{}
	_, err := Compile(cfg)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Greater(t, len(apiErr.Causes), 1)
}

func TestCompileAcceptsDayDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Duration = "1d"
	p, err := Compile(cfg)
	require.NoError(t, err)
	assert.Equal(t, 24*60*60.0, p.Duration.Seconds())
}

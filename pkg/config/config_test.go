package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envHomeVar, dir)

	var cfg EnvConfig
	require.NoError(t, cfg.Load())

	assert.Equal(t, "127.0.0.1:8042", cfg.Daemon.Listen)
	assert.Equal(t, "fake", cfg.Provider.Container)
	assert.Equal(t, "memory", cfg.Provider.Blob)
	assert.Equal(t, dir, cfg.WorkDir)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envHomeVar, dir)

	contents := `
workdir = "/var/lib/loadforge"

[daemon]
listen = "0.0.0.0:9000"

[provider]
container = "ecs"
blob = "s3"
ecs_cluster = "loadforge-cluster"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(contents), 0644))

	var cfg EnvConfig
	require.NoError(t, cfg.Load())

	assert.Equal(t, "0.0.0.0:9000", cfg.Daemon.Listen)
	assert.Equal(t, "ecs", cfg.Provider.Container)
	assert.Equal(t, "s3", cfg.Provider.Blob)
	assert.Equal(t, "loadforge-cluster", cfg.Provider.ECSCluster)
	assert.Equal(t, "/var/lib/loadforge", cfg.WorkDir)
}

func TestHomeRespectsEnvVar(t *testing.T) {
	t.Setenv(envHomeVar, "/tmp/custom-home")
	home, err := Home()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-home", home)
}

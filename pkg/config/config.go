// Package config loads the on-disk and environment configuration for both
// the daemon and the CLI: a TOML file under a home directory, overridable
// by environment variables and CLI flags layered on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
)

const envHomeVar = "LOADFORGE_HOME"

// DaemonConfig configures the HTTP front-end.
type DaemonConfig struct {
	Listen string `toml:"listen"`
}

// ClientConfig configures the CLI's connection to a daemon.
type ClientConfig struct {
	Endpoint string `toml:"endpoint"`
}

// ProviderConfig names which Container Client and Blob Client
// implementations to wire up, plus their backend-specific settings.
type ProviderConfig struct {
	// Container selects "ecs", "docker", or "fake".
	Container string `toml:"container"`
	// Blob selects "s3" or "memory".
	Blob string `toml:"blob"`

	ECSCluster        string   `toml:"ecs_cluster"`
	ECSTaskDefFamily  string   `toml:"ecs_task_definition_family"`
	ECSSubnets        []string `toml:"ecs_subnets"`
	ECSSecurityGroups []string `toml:"ecs_security_groups"`
	ECSLogGroup       string   `toml:"ecs_log_group"`

	DockerNetwork string `toml:"docker_network"`

	S3Region string `toml:"s3_region"`

	BlobNamespace string `toml:"blob_namespace"`
}

// RunStoreConfig configures the embedded run-history ledger.
type RunStoreConfig struct {
	Path string `toml:"path"`
}

// EnvConfig is the root configuration object, loaded once at process
// startup.
type EnvConfig struct {
	Daemon    DaemonConfig   `toml:"daemon"`
	Client    ClientConfig   `toml:"client"`
	Provider  ProviderConfig `toml:"provider"`
	RunStore  RunStoreConfig `toml:"runstore"`
	WorkDir   string         `toml:"workdir"`
}

func defaults() EnvConfig {
	return EnvConfig{
		Daemon: DaemonConfig{Listen: "127.0.0.1:8042"},
		Client: ClientConfig{Endpoint: "http://127.0.0.1:8042"},
		Provider: ProviderConfig{
			Container:     "fake",
			Blob:          "memory",
			DockerNetwork: "bridge",
			BlobNamespace: "loadforge",
		},
		RunStore: RunStoreConfig{Path: "runstore.db"},
	}
}

// Home returns the loadforge home directory: $LOADFORGE_HOME, or
// ~/.loadforge if unset.
func Home() (string, error) {
	if h := os.Getenv(envHomeVar); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user home directory: %w", err)
	}
	return filepath.Join(home, ".loadforge"), nil
}

// Load reads <home>/config.toml over top of the built-in defaults. A
// missing config file is not an error: the defaults apply unmodified.
func (c *EnvConfig) Load() error {
	*c = defaults()

	home, err := Home()
	if err != nil {
		return err
	}
	if c.WorkDir == "" {
		c.WorkDir = home
	}

	path := filepath.Join(home, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var onDisk EnvConfig
	if _, err := toml.DecodeFile(path, &onDisk); err != nil {
		return fmt.Errorf("failed to parse config file at %s: %w", path, err)
	}

	if err := mergo.Merge(c, onDisk, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config file into defaults: %w", err)
	}
	return nil
}

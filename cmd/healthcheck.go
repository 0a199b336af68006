package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli"

	"github.com/loadforge/loadforge/pkg/healthcheck"
	"github.com/loadforge/loadforge/pkg/providers"
)

// HealthcheckCommand verifies the configured Container Client and Blob
// Client are reachable, without executing a run.
var HealthcheckCommand = cli.Command{
	Name:   "healthcheck",
	Usage:  "checks that the configured providers are reachable",
	Action: healthcheckCommand,
}

func healthcheckCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	containerClient, err := providers.ContainerClient(cfg.Provider)
	if err != nil {
		return fmt.Errorf("resolving container provider: %w", err)
	}
	blobClient, err := providers.BlobClient(cfg.Provider)
	if err != nil {
		return fmt.Errorf("resolving blob provider: %w", err)
	}

	checker := healthcheck.New(containerClient, blobClient)
	result := checker.Check(ProcessContext())

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !result.OK {
		return cli.NewExitError("", 6)
	}
	return nil
}

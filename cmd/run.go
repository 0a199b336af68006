package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/logging"
	"github.com/loadforge/loadforge/pkg/orchestrator"
	"github.com/loadforge/loadforge/pkg/plan"
	"github.com/loadforge/loadforge/pkg/providers"
	"github.com/loadforge/loadforge/pkg/rpc"
	"github.com/loadforge/loadforge/pkg/runstore"
)

// RunCommand compiles a plan from flags, drives it to completion against
// the configured providers, and exits with the matching exit code.
var RunCommand = cli.Command{
	Name:      "run",
	Usage:     "runs a load test plan against a target URL",
	Action:    runCommand,
	ArgsUsage: "<target-url>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "kind", Value: "protocol", Usage: "test kind: protocol or browser"},
		cli.IntFlag{Name: "vus", Value: 10, Usage: "total number of virtual users"},
		cli.StringFlag{Name: "duration", Value: "1m", Usage: "plan duration, e.g. 30s, 5m, 1h"},
		cli.IntFlag{Name: "per-worker-vus", Value: 10, Usage: "virtual users assigned to each worker"},
		cli.Float64Flag{Name: "cpu-cores", Value: 1, Usage: "CPU cores per worker"},
		cli.Float64Flag{Name: "memory-gib", Value: 1, Usage: "memory in GiB per worker"},
		cli.StringFlag{Name: "worker-image", Usage: "container image reference used for worker processes"},
		cli.StringFlag{Name: "blob-namespace", Usage: "blob store namespace results are written under"},
		cli.StringSliceFlag{Name: "env", Usage: "environment variable override, KEY=VALUE, repeatable"},
	},
}

func runCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowSubcommandHelp(c)
		return fmt.Errorf("missing target URL")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	envOverrides, err := parseEnvFlags(c.StringSlice("env"))
	if err != nil {
		return err
	}

	planCfg := plan.Config{
		TargetURL:    c.Args().First(),
		TestKind:     c.String("kind"),
		TotalVUs:     c.Int("vus"),
		Duration:     c.String("duration"),
		PerWorkerVUs: c.Int("per-worker-vus"),
		WorkerResources: api.WorkerResources{
			CPUCores:  c.Float64("cpu-cores"),
			MemoryGiB: c.Float64("memory-gib"),
		},
		WorkerImageRef: c.String("worker-image"),
		BlobNamespace:  c.String("blob-namespace"),
		EnvOverrides:   envOverrides,
	}
	if planCfg.WorkerImageRef == "" {
		planCfg.WorkerImageRef = "loadforge/worker:latest"
	}
	if planCfg.BlobNamespace == "" {
		planCfg.BlobNamespace = cfg.Provider.BlobNamespace
	}

	containerClient, err := providers.ContainerClient(cfg.Provider)
	if err != nil {
		return fmt.Errorf("resolving container provider: %w", err)
	}
	blobClient, err := providers.BlobClient(cfg.Provider)
	if err != nil {
		return fmt.Errorf("resolving blob provider: %w", err)
	}
	store, err := runstore.Open(cfg.RunStore.Path)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer store.Close()

	orch := orchestrator.New(containerClient, blobClient, nil)

	started := time.Now()
	outcome := orch.Run(ProcessContext(), planCfg, rpc.Discard())

	rec := &runstore.Record{
		RunID:     outcome.RunID,
		TargetURL: planCfg.TargetURL,
		TestKind:  api.TestKind(planCfg.TestKind),
		Status:    orchestrator.Status(outcome),
		ExitCode:  orchestrator.ExitCode(outcome),
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	if outcome.Report != nil {
		rec.Grade = outcome.Report.Grade
	}
	if rec.RunID != "" {
		if err := store.Complete(rec); err != nil {
			logging.S().Warnw("failed to persist run record", "run_id", rec.RunID, "err", err)
		}
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return fmt.Errorf("encoding run outcome: %w", err)
	}

	return cli.NewExitError("", orchestrator.ExitCode(outcome))
}

func parseEnvFlags(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", e)
		}
		out[k] = v
	}
	return out, nil
}

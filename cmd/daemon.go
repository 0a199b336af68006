package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"github.com/loadforge/loadforge/pkg/daemon"
	"github.com/loadforge/loadforge/pkg/logging"
)

// DaemonCommand starts the HTTP server fronting the orchestrator.
var DaemonCommand = cli.Command{
	Name:   "daemon",
	Usage:  "runs the loadforge HTTP daemon",
	Action: daemonCommand,
}

func daemonCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logging.S().Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return d.Shutdown(ctx)
	}
}

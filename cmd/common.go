// Package cmd implements the loadforge CLI's subcommands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/loadforge/loadforge/pkg/config"
)

// ProcessContext returns a context cancelled on SIGINT/SIGTERM, shared
// across every subcommand so a Ctrl-C during a run propagates as
// cancellation rather than an abrupt process kill.
func ProcessContext() context.Context {
	processCtxOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-ch
			cancel()
		}()
		processCtx = ctx
	})
	return processCtx
}

var (
	processCtxOnce sync.Once
	processCtx     context.Context
)

// loadConfig reads the on-disk EnvConfig shared by every subcommand.
func loadConfig() (*config.EnvConfig, error) {
	var cfg config.EnvConfig
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"

	"github.com/loadforge/loadforge/cmd"
	"github.com/loadforge/loadforge/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "loadforge"
	app.Usage = "distributed load-test orchestrator"
	app.Commands = cmd.Commands
	app.Flags = cmd.Flags
	app.HideVersion = true
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(c *cli.Context) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
		return
	}
	if c.Bool("v") {
		logging.SetLevel(zapcore.DebugLevel)
	}
}

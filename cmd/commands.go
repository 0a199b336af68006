package cmd

import "github.com/urfave/cli"

// Commands is the full set of loadforge subcommands, wired into the CLI
// app in main.go.
var Commands = []cli.Command{
	RunCommand,
	DaemonCommand,
	HistoryCommand,
	HealthcheckCommand,
	ListCommand,
	VersionCommand,
}

// Flags are global flags applied before any subcommand.
var Flags = []cli.Flag{
	cli.BoolFlag{Name: "v", Usage: "enable debug-level logging"},
}

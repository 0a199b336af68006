package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

// Version is set at build time via -ldflags; it defaults to "dev" for
// local builds.
var Version = "dev"

// VersionCommand prints the build version.
var VersionCommand = cli.Command{
	Name:   "version",
	Usage:  "prints the loadforge version",
	Action: versionCommand,
}

func versionCommand(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, Version)
	return nil
}

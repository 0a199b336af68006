package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

// ListCommand prints the run exit-code legend. loadforge has no plan
// registry to enumerate, so `list` surfaces exit codes instead.
var ListCommand = cli.Command{
	Name:   "list",
	Usage:  "prints the run exit-code legend",
	Action: listCommand,
}

var exitCodeLegend = []struct {
	Code int
	Name string
}{
	{0, "ok"},
	{2, "degraded"},
	{3, "failed"},
	{4, "cancelled"},
	{5, "invalid plan"},
	{6, "infrastructure error"},
}

func listCommand(c *cli.Context) error {
	for _, e := range exitCodeLegend {
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", e.Code, e.Name)
	}
	return nil
}

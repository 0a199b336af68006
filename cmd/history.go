package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/loadforge/loadforge/pkg/runstore"
)

// HistoryCommand lists completed runs recorded in the local run store.
var HistoryCommand = cli.Command{
	Name:   "history",
	Usage:  "lists completed runs within a time window",
	Action: historyCommand,
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "since", Value: 24 * time.Hour, Usage: "how far back to list runs from"},
		cli.StringFlag{Name: "run-id", Usage: "look up a single run by id instead of listing"},
	},
}

func historyCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := runstore.Open(cfg.RunStore.Path)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer store.Close()

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")

	if runID := c.String("run-id"); runID != "" {
		rec, err := store.Get(runID)
		if err != nil {
			return err
		}
		return enc.Encode(rec)
	}

	now := time.Now()
	records, err := store.ListCompleted(now.Add(-c.Duration("since")), now)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	return enc.Encode(records)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/randalmurphal/streamflow/pkg/streamflow"
	"github.com/randalmurphal/streamflow/pkg/streamflow/runlog"
)

func historyCmd() *cli.Command {
	var (
		dbPath string
		digest string
		runID  string
		limit  int64
	)

	return &cli.Command{
		Name:  "history",
		Usage: "List recorded runs from a run history database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db",
				Usage:       "path to the SQLite run history database",
				Value:       "./streamflow-runs.db",
				Destination: &dbPath,
			},
			&cli.StringFlag{
				Name:        "digest",
				Usage:       "only list runs of the plan with this digest",
				Destination: &digest,
			},
			&cli.StringFlag{
				Name:        "run",
				Usage:       "show one run in full, including its schedule",
				Destination: &runID,
			},
			&cli.Int64Flag{
				Name:        "limit",
				Usage:       "maximum number of runs to list (0 = all)",
				Value:       20,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := runlog.NewSQLiteStore(dbPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open history: %v", err), 1)
			}
			defer store.Close()

			if runID != "" {
				return showRun(store, runID)
			}

			var records []runlog.Record
			if digest != "" {
				records, err = store.ListByDigest(digest, int(limit))
			} else {
				records, err = store.List(int(limit))
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: list runs: %v", err), 1)
			}

			if len(records) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			fmt.Printf("%-36s %-6s %-25s %12s %6s %7s %6s %-12s\n",
				"RUN", "STATUS", "STARTED", "DURATION", "TASKS", "QUEUES", "STEPS", "DIGEST")
			for _, rec := range records {
				fmt.Printf("%-36s %-6s %-25s %12s %6d %7d %6d %-12.12s\n",
					rec.RunID, rec.Status,
					rec.Started.Format(time.RFC3339),
					rec.Duration.Round(time.Microsecond),
					rec.Tasks, rec.Queues, rec.Steps, rec.Digest)
				if rec.Fault != "" {
					fmt.Printf("    fault: %s\n", rec.Fault)
				}
			}
			return nil
		},
	}
}

// showRun prints one record in full, decoding its stored schedule.
func showRun(store runlog.Store, runID string) error {
	rec, err := store.Get(runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: get run: %v", err), 1)
	}

	fmt.Printf("run:      %s\n", rec.RunID)
	fmt.Printf("status:   %s\n", rec.Status)
	if rec.Fault != "" {
		fmt.Printf("fault:    %s\n", rec.Fault)
	}
	fmt.Printf("started:  %s\n", rec.Started.Format(time.RFC3339Nano))
	fmt.Printf("duration: %s\n", rec.Duration.Round(time.Microsecond))
	fmt.Printf("digest:   %s\n", rec.Digest)
	fmt.Printf("tasks=%d queues=%d steps=%d\n", rec.Tasks, rec.Queues, rec.Steps)

	var summary streamflow.PlanSummary
	if err := rec.DecodeSchedule(&summary); err != nil {
		fmt.Printf("schedule: unavailable (%v)\n", err)
		return nil
	}
	fmt.Println("schedule:")
	for i, step := range summary.Steps {
		fmt.Printf("%3d  q%d  %-6s  %s\n", i, step.Queue, step.Kind, step.Detail)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/randalmurphal/streamflow/pkg/streamflow"
	"github.com/randalmurphal/streamflow/pkg/streamflow/runlog"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns  int64
		benchRuns   int64
		historyPath string
		noVerify    bool
	)

	flags := append([]cli.Flag{}, commonWorkloadFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of timed runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "history",
			Usage:       "append run records to this SQLite database",
			Destination: &historyPath,
		},
		&cli.BoolFlag{
			Name:        "no-verify",
			Usage:       "skip result verification after each run",
			Destination: &noVerify,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run a workload repeatedly and report timing",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := applyFileConfig(cmd); err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}
			if cfgHistory := historyFromConfig(cmd); cfgHistory != "" {
				historyPath = cfgHistory
			}

			dev, inst, err := buildWorkload()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build workload: %v", err), 1)
			}
			defer dev.Close()
			defer inst.Close()

			compileStart := time.Now()
			compiled, err := inst.Graph.Compile(dev, compileOptions()...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: compile: %v", err), 1)
			}
			compileDuration := time.Since(compileStart)

			var runOpts []streamflow.RunOption
			if historyPath != "" {
				store, err := runlog.NewSQLiteStore(historyPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: open history: %v", err), 1)
				}
				defer store.Close()
				runOpts = append(runOpts, streamflow.WithRunLog(store))
			}

			fmt.Println("=== Streamflow Bench ===")
			fmt.Printf("Workload:   %s\n", workloadName)
			fmt.Printf("Elements:   %d\n", elements)
			fmt.Printf("Queues:     %d\n", compiled.QueueCount())
			fmt.Printf("Barriers:   %d\n", compiled.BarrierCount())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Compile:    %s\n", compileDuration.Round(time.Microsecond))
			fmt.Printf("Digest:     %.12s\n", compiled.Digest())
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			runOnce := func() (time.Duration, error) {
				start := time.Now()
				handle := compiled.Run(ctx, runOpts...)
				if err := handle.Wait(); err != nil {
					return 0, err
				}
				elapsed := time.Since(start)
				if !noVerify {
					if err := inst.Verify(); err != nil {
						return 0, err
					}
				}
				return elapsed, nil
			}

			for i := range int(warmupRuns) {
				if _, err := runOnce(); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			durations := make([]time.Duration, 0, benchRuns)
			for i := range int(benchRuns) {
				elapsed, err := runOnce()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: run %d: %v", i+1, err), 1)
				}
				durations = append(durations, elapsed)
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %14s\n", "Run", "Duration", "Elements/s")
			var total time.Duration
			for i, d := range durations {
				fmt.Printf("%-6d %12s %14.0f\n",
					i+1, d.Round(time.Microsecond), rate(elements, d))
				total += d
			}
			avg := total / time.Duration(len(durations))
			fmt.Printf("\n%-6s %12s %14.0f\n", "Avg", avg.Round(time.Microsecond), rate(elements, avg))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

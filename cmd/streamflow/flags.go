package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/randalmurphal/streamflow/pkg/streamflow"
	"github.com/randalmurphal/streamflow/pkg/streamflow/config"
	"github.com/randalmurphal/streamflow/pkg/streamflow/device"
	"github.com/randalmurphal/streamflow/pkg/streamflow/workload"
)

var (
	configPath   string
	queues       int64
	width        int64
	blockSize    int64
	workloadName string
	elements     int64

	// fileConfig holds the loaded config file, empty when --config was
	// not given.
	fileConfig config.Config
)

func commonWorkloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"f"},
			Usage:       "path to a .yaml/.json config file",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "workload",
			Aliases:     []string{"w"},
			Usage:       "workload name (see --list)",
			Value:       "sum-reduce",
			Destination: &workloadName,
		},
		&cli.Int64Flag{
			Name:        "elements",
			Aliases:     []string{"n"},
			Usage:       "number of input elements",
			Value:       1_000_000,
			Destination: &elements,
		},
		&cli.Int64Flag{
			Name:        "queues",
			Aliases:     []string{"q"},
			Usage:       "device queue count",
			Value:       2,
			Destination: &queues,
		},
		&cli.Int64Flag{
			Name:        "width",
			Usage:       "device parallel width (default GOMAXPROCS)",
			Value:       int64(runtime.GOMAXPROCS(0)),
			Destination: &width,
		},
		&cli.Int64Flag{
			Name:        "block-size",
			Usage:       "force the reduction block size (0 = planner default)",
			Destination: &blockSize,
		},
	}
}

// applyFileConfig fills in workload settings from the config file for
// every flag the user did not set explicitly. Flags always win.
func applyFileConfig(c *cli.Command) error {
	if configPath == "" {
		return nil
	}
	cfg, err := config.FromFile(configPath)
	if err != nil {
		return err
	}
	fileConfig = cfg
	if cfg.Has("workload") && !c.IsSet("workload") {
		workloadName = cfg.String("workload", workloadName)
	}
	if cfg.Has("elements") && !c.IsSet("elements") {
		elements = int64(cfg.Int("elements", int(elements)))
	}
	if cfg.Has("queues") && !c.IsSet("queues") {
		queues = int64(cfg.Int("queues", int(queues)))
	}
	if cfg.Has("width") && !c.IsSet("width") {
		width = int64(cfg.Int("width", int(width)))
	}
	if cfg.Has("block_size") && !c.IsSet("block-size") {
		blockSize = int64(cfg.Int("block_size", int(blockSize)))
	}
	return nil
}

// historyFromConfig returns the config file's history path unless the
// flag was set explicitly.
func historyFromConfig(c *cli.Command) string {
	if c.IsSet("history") {
		return ""
	}
	return fileConfig.String("history", "")
}

// buildWorkload creates the device and workload instance from the
// resolved flags. The caller owns both returned cleanups.
func buildWorkload() (*device.Device, *workload.Instance, error) {
	build, ok := workload.Get(workloadName)
	if !ok {
		return nil, nil, fmt.Errorf("unknown workload %q (available: %s)",
			workloadName, strings.Join(workload.Names(), ", "))
	}

	dev := device.New(device.WithQueues(int(queues)), device.WithWidth(int(width)))
	inst, err := build(dev, int(elements))
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return dev, inst, nil
}

// compileOptions maps the flag set onto compile options.
func compileOptions() []streamflow.CompileOption {
	var opts []streamflow.CompileOption
	if blockSize > 0 {
		opts = append(opts, streamflow.WithBlockSize(int(blockSize)))
	}
	return opts
}

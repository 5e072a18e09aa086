package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/randalmurphal/streamflow/pkg/streamflow/workload"
)

func planCmd() *cli.Command {
	var (
		jsonOut bool
		list    bool
	)

	flags := append([]cli.Flag{}, commonWorkloadFlags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the plan summary as JSON",
			Destination: &jsonOut,
		},
		&cli.BoolFlag{
			Name:        "list",
			Usage:       "list available workloads and exit",
			Destination: &list,
		},
	)

	return &cli.Command{
		Name:  "plan",
		Usage: "Compile a workload and print its schedule",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if list {
				fmt.Println(strings.Join(workload.Names(), "\n"))
				return nil
			}
			if err := applyFileConfig(cmd); err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}

			dev, inst, err := buildWorkload()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build workload: %v", err), 1)
			}
			defer dev.Close()
			defer inst.Close()

			compiled, err := inst.Graph.Compile(dev, compileOptions()...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: compile: %v", err), 1)
			}

			if jsonOut {
				blob, err := json.MarshalIndent(compiled.Summary(), "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode plan: %v", err), 1)
				}
				fmt.Println(string(blob))
				return nil
			}

			fmt.Printf("workload=%s elements=%d\n", workloadName, elements)
			fmt.Print(compiled.Describe())
			return nil
		},
	}
}

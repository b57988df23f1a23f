// Command demandctl runs the demandcast forecast engine offline.
//
// Usage:
//
//	demandctl forecast --data history.csv --model models/cpu_model.json --days 7
//	demandctl predict --data history.csv --model models/cpu_model.json --input month=6 --input year=2024
//	demandctl features --model models/cpu_model.json
//
// --model accepts a linear model artifact path or "baseline".
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "demandctl",
		Usage:   "Forecast cloud CPU and storage demand from historical usage",
		Version: version,
		Writer:  out,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"DEMANDCTL_LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			forecastCommand(),
			predictCommand(),
			featuresCommand(),
		},
	}
}

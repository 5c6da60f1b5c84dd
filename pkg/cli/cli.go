// Package cli provides the command-line interface for apiflow-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace config.yaml",
		EnvVars: []string{"APIFLOW_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"APIFLOW_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "apiflow-runner",
		Usage:   "YAML-driven API test-flow runner",
		Version: Version,
		Description: `apiflow-runner executes YAML test flows: HTTP steps with
variable interpolation, verification, extraction, and flows composed out of
other flow files.

Examples:
  apiflow-runner run flow.yaml
  apiflow-runner run flows/ -e USER=test
  apiflow-runner validate flows/`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

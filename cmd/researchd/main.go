package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path to a .env file",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "researchd",
		Usage: "Research job orchestrator",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and worker pool",
				Flags:  []cli.Flag{envFlag},
				Action: serveAction,
			},
			{
				Name:      "run",
				Usage:     "Research one topic in the foreground and print the report",
				ArgsUsage: "<topic>",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "mode",
						Usage: "quick or deep",
						Value: "deep",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "write the report to <Topic>_Report.md",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "write the report to this path",
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

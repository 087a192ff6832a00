// Package main provides the woof-worker binary: the per-function
// collaborator process the lambda-api service spawns for each installed
// function. It speaks the framed command protocol on stdin/stdout and
// hosts the function's handler code in an embedded Lua interpreter; all
// logging goes to stderr so the frame channel stays clean.
//
// Usage:
//
//	woof-worker [--fibres N] [--queue-depth N] [--log-level level]
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/woofstack/platform/log"
	"github.com/woofstack/platform/worker"
)

func main() {
	app := &cli.App{
		Name:  "woof-worker",
		Usage: "function collaborator worker (spawned by lambda-api, not run by hand)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "fibres",
				Usage: "number of command execution fibres",
				Value: worker.DefaultFibres,
			},
			&cli.IntFlag{
				Name:  "queue-depth",
				Usage: "pending command queue depth",
				Value: worker.DefaultQueueDepth,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := log.New("woof-worker", c.String("log-level"), "json")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	exec := worker.NewLuaExecutor()
	defer func() { _ = exec.Close() }()

	return worker.Serve(os.Stdin, os.Stdout, exec, worker.Options{
		QueueDepth: c.Int("queue-depth"),
		Fibres:     c.Int("fibres"),
		Logger:     logger,
	})
}

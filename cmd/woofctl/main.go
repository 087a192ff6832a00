// Package main provides woofctl: the operator CLI for a running
// woofstack deployment. Talks to the lambda-api and s3-api HTTP
// surfaces; nothing here touches the data directory directly.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "woofctl",
		Usage:   "operate a woofstack deployment",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "lambda-endpoint",
				Usage: "Function service base URL",
				Value: "http://127.0.0.1:9001",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Object service base URL",
				Value: "http://127.0.0.1:9000",
			},
		},
		Commands: []*cli.Command{
			functionsCommand(),
			objectsCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

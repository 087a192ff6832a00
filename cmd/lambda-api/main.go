// Package main provides the lambda-api server: the Lambda-style function
// control plane.
//
// Usage:
//
//	lambda-api serve [--config woofstack.yaml] [--listen :9001] [--data-dir ./data]
//
// Function workers are spawned from the woof-worker binary; with
// --in-process the worker loop runs inside this process instead, which
// is what local development and tests use.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/woofstack/platform/config"
	"github.com/woofstack/platform/functions"
	"github.com/woofstack/platform/httpapi"
	"github.com/woofstack/platform/log"
	"github.com/woofstack/platform/metrics"
)

func main() {
	app := &cli.App{
		Name:    "lambda-api",
		Usage:   "function service control plane",
		Version: "0.1.0",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the function service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (overrides config)",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Data directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "worker-bin",
				Usage: "Path to the woof-worker binary (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "in-process",
				Usage: "Run function workers inside this process instead of spawning woof-worker",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if v := c.String("listen"); v != "" {
		cfg.Lambda.ListenAddr = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("worker-bin"); v != "" {
		cfg.Lambda.WorkerBin = v
	}

	logger, err := log.New("lambda-api", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	spawner, err := buildSpawner(c.Bool("in-process"), cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	collector := metrics.NewCollector("lambda-api")
	manager, err := functions.NewManager(functions.Config{
		MetadataDir:      filepath.Join(cfg.DataDir, "metadata"),
		ZipsDir:          filepath.Join(cfg.DataDir, "zips"),
		InstallDir:       filepath.Join(cfg.DataDir, "installs"),
		WorkerQueueDepth: cfg.Lambda.WorkerQueueDepth,
		WorkerFibres:     cfg.Lambda.WorkerFibres,
		ResultWoofCount:  cfg.Lambda.ResultWoofCount,
		CallWoofElSize:   cfg.Lambda.CallWoofElSize,
		ResultWoofElSize: cfg.Lambda.ResultWoofElSize,
		InvokeTimeout:    cfg.Lambda.InvokeTimeout.Duration,
	}, spawner, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer manager.Shutdown()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(cfg.Lambda.ListenAddr, httpapi.NewLambdaHandler(manager, logger), logger)
	logger.Info("function service listening", zap.String("addr", cfg.Lambda.ListenAddr))
	return httpapi.Run(ctx, srv, logger)
}

// buildSpawner resolves how function workers run: spawned from the
// woof-worker binary (found via config, or next to this executable), or
// in-process.
func buildSpawner(inProcess bool, cfg *config.Config) (functions.Spawner, error) {
	if inProcess {
		return &functions.InProcessSpawner{}, nil
	}

	bin := cfg.Lambda.WorkerBin
	if bin == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate woof-worker: %w", err)
		}
		bin = filepath.Join(filepath.Dir(self), "woof-worker")
	}
	if _, err := os.Stat(bin); err != nil {
		return nil, fmt.Errorf("woof-worker binary not found at %s (set --worker-bin or use --in-process)", bin)
	}

	return &functions.ProcessSpawner{
		BinPath:    bin,
		Fibres:     cfg.Lambda.WorkerFibres,
		QueueDepth: cfg.Lambda.WorkerQueueDepth,
	}, nil
}

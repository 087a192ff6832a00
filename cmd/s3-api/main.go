// Package main provides the s3-api server: the S3-style object control
// plane, with bucket notifications dispatched to the function service
// over HTTP (or to a Redis channel, for broker-fronted deployments).
//
// Usage:
//
//	s3-api serve [--config woofstack.yaml] [--listen :9000] \
//	    [--lambda-endpoint http://127.0.0.1:9001]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/woofstack/platform/adapter"
	redisadapter "github.com/woofstack/platform/adapter/redis"
	"github.com/woofstack/platform/adapter/webhook"
	"github.com/woofstack/platform/config"
	"github.com/woofstack/platform/httpapi"
	"github.com/woofstack/platform/log"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/notify"
	"github.com/woofstack/platform/objectstore"
)

func main() {
	app := &cli.App{
		Name:    "s3-api",
		Usage:   "object service control plane",
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
		Usage: "Run the object service",
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
				Name:  "lambda-endpoint",
				Usage: "Function service base URL for notification dispatch (overrides config)",
			},
			&cli.StringFlag{
				Name:  "notify-adapter",
				Usage: "Notification adapter: webhook or redis (overrides config)",
			},
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Redis URL for the redis notification adapter",
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
		cfg.Storage.ListenAddr = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("notify-adapter"); v != "" {
		cfg.Notify.Adapter = v
	}
	if v := c.String("lambda-endpoint"); v != "" && cfg.Notify.Adapter == "webhook" {
		cfg.Notify.URL = v
	}
	if v := c.String("redis-url"); v != "" && cfg.Notify.Adapter == "redis" {
		cfg.Notify.URL = v
	}

	logger, err := log.New("s3-api", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector("s3-api")

	engine, err := buildEngine(cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, err := objectstore.New(objectstore.Config{
		Dir:          filepath.Join(cfg.DataDir, "objects"),
		ShardBytes:   cfg.Storage.ShardBytes,
		ShardsPerLog: cfg.Storage.ShardsPerLog,
	}, engine, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(cfg.Storage.ListenAddr, httpapi.NewS3Handler(store, logger, collector), logger)
	logger.Info("object service listening", zap.String("addr", cfg.Storage.ListenAddr))
	return httpapi.Run(ctx, srv, logger)
}

// buildEngine assembles the notification engine from the configured
// adapter. No URL means notifications are disabled.
func buildEngine(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*notify.Engine, error) {
	if cfg.Notify.URL == "" {
		logger.Warn("no notification endpoint configured; bucket notifications are disabled")
		return nil, nil
	}

	var a adapter.Adapter
	var err error
	switch cfg.Notify.Adapter {
	case "webhook", "":
		a, err = webhook.New(webhook.Config{
			BaseURL: cfg.Notify.URL,
			Headers: cfg.Notify.Headers,
			Timeout: cfg.Notify.Timeout.Duration,
		})
	case "redis":
		a, err = redisadapter.New(redisadapter.Config{
			URL:     cfg.Notify.URL,
			Channel: cfg.Notify.Channel,
			Timeout: cfg.Notify.Timeout.Duration,
		})
	default:
		return nil, fmt.Errorf("unknown notify adapter %q", cfg.Notify.Adapter)
	}
	if err != nil {
		return nil, err
	}

	return notify.NewEngine(a, logger, collector, cfg.Notify.Timeout.Duration), nil
}

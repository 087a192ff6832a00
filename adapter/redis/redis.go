// Package redis implements a Redis pub/sub adapter for notification dispatch.
//
// Publishes invocation events as JSON to a configurable Redis channel,
// offered as an alternative to the HTTP webhook adapter for operators who
// front their function service with a message broker instead of calling it
// directly. Like the webhook adapter, failures are reported to the caller
// but never retried — the notify engine's dispatch contract is fire-and-forget.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/woofstack/platform/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "woofcloud:invocations"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: woofcloud:invocations).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// Adapter publishes invocation events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// redisMessage is the JSON shape published to the channel.
type redisMessage struct {
	FunctionARN string `json:"function_arn"`
	EventName   string `json:"event_name"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Body        string `json:"body"`
}

// Publish sends the event as a single JSON PUBLISH to the configured channel.
// One attempt only; the caller decides whether to log or ignore failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.InvocationEvent) error {
	msg := redisMessage{
		FunctionARN: event.FunctionARN,
		EventName:   event.EventName,
		Bucket:      event.Bucket,
		Key:         event.Key,
		Body:        string(event.Body),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("redis: context canceled: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if err := a.client.Publish(publishCtx, a.config.Channel, body).Err(); err != nil {
		return fmt.Errorf("redis: publish failed: %w", err)
	}

	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)

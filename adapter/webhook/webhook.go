// Package webhook implements an HTTP POST adapter for notification dispatch.
//
// Delivers a matched bucket-notification event to a target function's
// invocation endpoint. Per the notification engine's fire-and-forget
// contract, a single attempt is made and failures are never retried or
// propagated to the triggering bucket operation — the caller only logs them.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/woofstack/platform/adapter"
	"github.com/woofstack/platform/iox"
	"github.com/woofstack/platform/types"
)

// DefaultTimeout is the default HTTP request timeout for dispatch calls.
const DefaultTimeout = 30 * time.Second

// Config configures the webhook adapter.
type Config struct {
	// BaseURL is the function service endpoint, e.g. "http://localhost:80".
	BaseURL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
}

// Adapter delivers invocation events via HTTP POST to the function service's
// invocations path, using X-Amz-Invocation-Type: Event.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter from the given config.
// Returns an error if BaseURL is empty.
func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("webhook adapter requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish POSTs the event body to
// "<BaseURL>/2015-03-31/functions/<name>/invocations" with
// X-Amz-Invocation-Type: Event. A single attempt is made; the caller is
// responsible for logging failures, never propagating them.
func (a *Adapter) Publish(ctx context.Context, event *adapter.InvocationEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("webhook: context canceled: %w", err)
	}
	return a.doRequest(ctx, event)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (a *Adapter) doRequest(ctx context.Context, event *adapter.InvocationEvent) error {
	// Targets arrive as full function ARNs from notification bindings;
	// bare names are accepted too and used verbatim.
	name := event.FunctionARN
	if parsed, ok := types.ParseFunctionArn(name); ok {
		name = parsed
	}
	url := fmt.Sprintf("%s/2015-03-31/functions/%s/invocations", a.config.BaseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(event.Body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Amz-Invocation-Type", "Event")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drain body to allow connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)

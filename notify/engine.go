package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woofstack/platform/adapter"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/types"
)

// DefaultDispatchTimeout bounds one notification delivery.
const DefaultDispatchTimeout = 30 * time.Second

// Engine evaluates a bucket's notification bindings against emitted
// events and dispatches matches through its adapter. Dispatch is
// asynchronous and best-effort: a delivery failure is logged and counted,
// never surfaced to the bucket operation that triggered it.
type Engine struct {
	adapter adapter.Adapter
	log     *zap.Logger
	metrics *metrics.Collector
	timeout time.Duration

	inflight sync.WaitGroup
}

// NewEngine creates an engine dispatching through a. logger and
// collector may be nil; a zero timeout selects the default.
func NewEngine(a adapter.Adapter, logger *zap.Logger, collector *metrics.Collector, timeout time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Engine{adapter: a, log: logger, metrics: collector, timeout: timeout}
}

// Notify evaluates cfg's bindings against one (event, bucket, key)
// occurrence and dispatches every match. Returns immediately; deliveries
// run in the background. A nil cfg means the bucket has no notification
// configuration and is a no-op.
func (e *Engine) Notify(cfg *types.NotificationConfig, event types.EventType, bucketName, key string, size uint64) {
	if e == nil || cfg == nil {
		return
	}

	envelope := types.NewEventEnvelope(event, bucketName, key, size, time.Now().UTC())
	var body []byte
	for _, binding := range cfg.Bindings {
		if !binding.MatchesEvent(event, key) {
			continue
		}
		e.metrics.IncEventMatched()

		if body == nil {
			encoded, err := json.Marshal(envelope)
			if err != nil {
				e.log.Error("encode event envelope", zap.Error(err))
				e.metrics.IncEventFailed()
				return
			}
			body = encoded
		}

		ev := &adapter.InvocationEvent{
			FunctionARN: binding.TargetArn,
			EventName:   string(event),
			Bucket:      bucketName,
			Key:         key,
			Body:        body,
		}
		e.inflight.Add(1)
		go e.dispatch(ev)
	}
}

func (e *Engine) dispatch(ev *adapter.InvocationEvent) {
	defer e.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.adapter.Publish(ctx, ev); err != nil {
		e.metrics.IncEventFailed()
		e.log.Warn("notification dispatch failed",
			zap.String("target", ev.FunctionARN),
			zap.String("event", ev.EventName),
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
			zap.Error(err))
		return
	}
	e.metrics.IncEventDispatched()
}

// Close waits for in-flight dispatches and releases the adapter.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.inflight.Wait()
	return e.adapter.Close()
}

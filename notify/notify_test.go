package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/woofstack/platform/adapter"
	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/types"
)

const configXML = `
<NotificationConfiguration>
  <CloudFunctionConfiguration>
    <Id>log-trigger</Id>
    <CloudFunction>arn:woofcloud:lambda:local:000000000000:function:trigger</CloudFunction>
    <Event>s3:ObjectCreated:*</Event>
    <Filter>
      <S3Key>
        <FilterRule>
          <Name>prefix</Name>
          <Value>logs/</Value>
        </FilterRule>
      </S3Key>
    </Filter>
  </CloudFunctionConfiguration>
</NotificationConfiguration>`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(configXML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Bindings) != 1 {
		t.Fatalf("bindings = %d, want 1", len(cfg.Bindings))
	}

	b := cfg.Bindings[0]
	if b.ID != "log-trigger" {
		t.Errorf("ID = %q", b.ID)
	}
	if !b.MatchesEvent(types.EventObjectCreatedPut, "logs/a.txt") {
		t.Error("wildcard event + matching prefix must match")
	}
	if !b.MatchesEvent(types.EventObjectCreatedCopy, "logs/a.txt") {
		t.Error("wildcard must cover Copy too")
	}
	if b.MatchesEvent(types.EventObjectRemoved, "logs/a.txt") {
		t.Error("wildcard must not cover ObjectRemoved")
	}
	if b.MatchesEvent(types.EventObjectCreatedPut, "other/a.txt") {
		t.Error("prefix filter must reject other/")
	}
}

func TestParseConfig_EmptyFilterAcceptsAll(t *testing.T) {
	xml := `
<NotificationConfiguration>
  <CloudFunctionConfiguration>
    <CloudFunction>arn:woofcloud:lambda:local:000000000000:function:t</CloudFunction>
    <Event>s3:ObjectRemoved:Delete</Event>
    <Filter><S3Key></S3Key></Filter>
  </CloudFunctionConfiguration>
</NotificationConfiguration>`
	cfg, err := ParseConfig([]byte(xml))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if !cfg.Bindings[0].MatchesEvent(types.EventObjectRemoved, "anything/at/all") {
		t.Error("empty S3Key section must accept every key")
	}
}

func TestParseConfig_Rejections(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		kind errs.Kind
	}{
		{
			"unknown event",
			`<NotificationConfiguration><CloudFunctionConfiguration>
			  <CloudFunction>arn:woofcloud:lambda:local:000000000000:function:t</CloudFunction>
			  <Event>s3:ObjectRestored:Post</Event>
			 </CloudFunctionConfiguration></NotificationConfiguration>`,
			errs.InvalidParameter,
		},
		{
			"no events",
			`<NotificationConfiguration><CloudFunctionConfiguration>
			  <CloudFunction>arn:woofcloud:lambda:local:000000000000:function:t</CloudFunction>
			 </CloudFunctionConfiguration></NotificationConfiguration>`,
			errs.InvalidParameter,
		},
		{
			"bad target arn",
			`<NotificationConfiguration><CloudFunctionConfiguration>
			  <CloudFunction>arn:aws:sqs:::queue</CloudFunction>
			  <Event>s3:ObjectCreated:Put</Event>
			 </CloudFunctionConfiguration></NotificationConfiguration>`,
			errs.InvalidParameter,
		},
		{
			"unsupported filter rule name",
			`<NotificationConfiguration><CloudFunctionConfiguration>
			  <CloudFunction>arn:woofcloud:lambda:local:000000000000:function:t</CloudFunction>
			  <Event>s3:ObjectCreated:Put</Event>
			  <Filter><S3Key><FilterRule><Name>suffix</Name><Value>.txt</Value></FilterRule></S3Key></Filter>
			 </CloudFunctionConfiguration></NotificationConfiguration>`,
			errs.ServiceError,
		},
		{
			"malformed xml",
			`<NotificationConfiguration`,
			errs.InvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.xml))
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (%v)", errs.KindOf(err), tt.kind, err)
			}
		})
	}
}

// captureAdapter records published events.
type captureAdapter struct {
	mu     sync.Mutex
	events []*adapter.InvocationEvent
	fail   bool
}

func (c *captureAdapter) Publish(_ context.Context, event *adapter.InvocationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("delivery refused")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureAdapter) Close() error { return nil }

func (c *captureAdapter) captured() []*adapter.InvocationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*adapter.InvocationEvent(nil), c.events...)
}

func TestEngine_NotifyDispatchesMatch(t *testing.T) {
	cfg, err := ParseConfig([]byte(configXML))
	if err != nil {
		t.Fatal(err)
	}

	capture := &captureAdapter{}
	collector := metrics.NewCollector("test")
	engine := NewEngine(capture, nil, collector, 0)

	engine.Notify(cfg, types.EventObjectCreatedPut, "b", "logs/a.txt", 5)
	engine.Notify(cfg, types.EventObjectCreatedPut, "b", "other/a.txt", 5)
	engine.Notify(cfg, types.EventObjectRemoved, "b", "logs/a.txt", 0)
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := capture.captured()
	if len(events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Key != "logs/a.txt" || ev.EventName != string(types.EventObjectCreatedPut) {
		t.Errorf("dispatched event = %+v", ev)
	}

	var envelope types.EventEnvelope
	if err := json.Unmarshal(ev.Body, &envelope); err != nil {
		t.Fatalf("body not an event envelope: %v", err)
	}
	if len(envelope.Records) != 1 {
		t.Fatalf("envelope has %d records, want 1", len(envelope.Records))
	}
	record := envelope.Records[0]
	if record.S3.Object.Key != "logs/a.txt" {
		t.Errorf("record key = %q", record.S3.Object.Key)
	}
	if record.EventVersion != "2.0" || record.EventSource != "aws:s3" || record.AwsRegion != "us-west-1" {
		t.Errorf("record identity fields = %q/%q/%q", record.EventVersion, record.EventSource, record.AwsRegion)
	}
	if record.S3.S3SchemaVersion != "1.0" {
		t.Errorf("s3SchemaVersion = %q", record.S3.S3SchemaVersion)
	}
	if record.S3.Bucket.Arn != "arn:aws:s3:::b" {
		t.Errorf("bucket arn = %q", record.S3.Bucket.Arn)
	}

	snap := collector.Snapshot()
	if snap.EventsMatched != 1 || snap.EventsDispatched != 1 {
		t.Errorf("matched/dispatched = %d/%d, want 1/1", snap.EventsMatched, snap.EventsDispatched)
	}
}

func TestEngine_DeliveryFailureIsSwallowed(t *testing.T) {
	cfg, err := ParseConfig([]byte(configXML))
	if err != nil {
		t.Fatal(err)
	}

	collector := metrics.NewCollector("test")
	engine := NewEngine(&captureAdapter{fail: true}, nil, collector, 0)

	// Notify must not surface the adapter failure in any form.
	engine.Notify(cfg, types.EventObjectCreatedPut, "b", "logs/a.txt", 5)
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snap := collector.Snapshot()
	if snap.EventsFailed != 1 {
		t.Errorf("EventsFailed = %d, want 1", snap.EventsFailed)
	}
}

func TestEngine_NilConfigNoop(t *testing.T) {
	capture := &captureAdapter{}
	engine := NewEngine(capture, nil, nil, 0)
	engine.Notify(nil, types.EventObjectCreatedPut, "b", "k", 1)
	_ = engine.Close()
	if len(capture.captured()) != 0 {
		t.Error("nil config must dispatch nothing")
	}
}

package types

import (
	"testing"
	"time"
)

func TestLogRef_IsNull(t *testing.T) {
	tests := []struct {
		name string
		ref  LogRef
		want bool
	}{
		{"null sentinel", NullLogRef, true},
		{"zero value is not null", LogRef{}, false},
		{"ordinary ref", LogRef{LogID: 1, RecordIdx: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.IsNull(); got != tt.want {
				t.Errorf("IsNull() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrefix_Match(t *testing.T) {
	tests := []struct {
		prefix Prefix
		key    string
		want   bool
	}{
		{"logs/", "logs/a.txt", true},
		{"logs/", "images/a.txt", false},
		{"", "anything", true},
		{"logs/a.txt.exact", "logs/a.txt", false},
	}
	for _, tt := range tests {
		if got := tt.prefix.Match(tt.key); got != tt.want {
			t.Errorf("Prefix(%q).Match(%q) = %v, want %v", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestAnd_Match(t *testing.T) {
	f := And{Prefix("logs/"), Prefix("logs/a")}
	if !f.Match("logs/a.txt") {
		t.Error("expected match")
	}
	if f.Match("logs/b.txt") {
		t.Error("expected no match")
	}
	if !(And{}).Match("anything") {
		t.Error("empty And must match everything")
	}
}

func TestHandlerBinding_MatchesEvent(t *testing.T) {
	b := HandlerBinding{
		Events: []EventType{EventObjectCreatedPut, EventObjectCreatedPost},
		FilterRules: filterXML{
			Rules: []filterRuleXML{{Name: "prefix", Value: "logs/"}},
		},
	}

	if !b.MatchesEvent(EventObjectCreatedPut, "logs/a.txt") {
		t.Error("expected match for Put under prefix")
	}
	if b.MatchesEvent(EventObjectRemoved, "logs/a.txt") {
		t.Error("Delete not in binding's event list, must not match")
	}
	if b.MatchesEvent(EventObjectCreatedPut, "images/a.txt") {
		t.Error("key outside prefix must not match")
	}
}

func TestValidFunctionName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"my-function_1", true},
		{"", false},
		{"bad name with spaces", false},
		{"bad/slash", false},
	}
	for _, tt := range tests {
		if got := ValidFunctionName(tt.name); got != tt.want {
			t.Errorf("ValidFunctionName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidHandler(t *testing.T) {
	tests := []struct {
		handler string
		want    bool
	}{
		{"index.handler", true},
		{"index", false},
		{"a.b.c", false},
	}
	for _, tt := range tests {
		if got := ValidHandler(tt.handler); got != tt.want {
			t.Errorf("ValidHandler(%q) = %v, want %v", tt.handler, got, tt.want)
		}
	}
}

func TestParseInvocationMode(t *testing.T) {
	if ParseInvocationMode("Event") != InvocationEvent {
		t.Error("expected InvocationEvent")
	}
	if ParseInvocationMode("RequestResponse") != InvocationRequestResponse {
		t.Error("expected InvocationRequestResponse")
	}
	if ParseInvocationMode("") != InvocationRequestResponse {
		t.Error("expected default InvocationRequestResponse")
	}
}

func TestParseFunctionArn(t *testing.T) {
	tests := []struct {
		arn    string
		want   string
		wantOK bool
	}{
		{FunctionArn("trigger"), "trigger", true},
		{"arn:aws:lambda:function:my-fn_2", "my-fn_2", true},
		{"trigger", "", false},
		{"arn:aws:s3:::bucket", "", false},
		{"arn:aws:lambda:function:", "", false},
		{"arn:aws:lambda:function:bad name", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFunctionArn(tt.arn)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseFunctionArn(%q) = %q, %v; want %q, %v", tt.arn, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValidEventPattern(t *testing.T) {
	tests := []struct {
		pattern EventType
		want    bool
	}{
		{EventObjectCreatedPut, true},
		{"s3:ObjectCreated:*", true},
		{"s3:Object*", true},
		{"s3:ObjectRestored:Post", false},
		{"s3:ObjectRemoved:*", true},
		{"sqs:*", false},
	}
	for _, tt := range tests {
		if got := ValidEventPattern(tt.pattern); got != tt.want {
			t.Errorf("ValidEventPattern(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestHandlerBinding_WildcardEvents(t *testing.T) {
	b := HandlerBinding{Events: []EventType{"s3:ObjectCreated:*"}}

	for _, e := range []EventType{EventObjectCreatedPut, EventObjectCreatedPost, EventObjectCreatedCopy} {
		if !b.MatchesEvent(e, "any") {
			t.Errorf("wildcard must cover %s", e)
		}
	}
	if b.MatchesEvent(EventObjectRemoved, "any") {
		t.Error("wildcard must not cover ObjectRemoved")
	}
}

func TestNewEventEnvelope(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	env := NewEventEnvelope(EventObjectCreatedPut, "b", "logs/a.txt", 5, at)

	if len(env.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(env.Records))
	}
	r := env.Records[0]
	if r.EventVersion != "2.0" || r.EventSource != "aws:s3" || r.AwsRegion != "us-west-1" {
		t.Errorf("identity fields = %q/%q/%q", r.EventVersion, r.EventSource, r.AwsRegion)
	}
	if r.EventName != "s3:ObjectCreated:Put" || !r.EventTime.Equal(at) {
		t.Errorf("event name/time = %q/%v", r.EventName, r.EventTime)
	}
	if r.S3.S3SchemaVersion != "1.0" {
		t.Errorf("s3SchemaVersion = %q", r.S3.S3SchemaVersion)
	}
	if r.S3.Bucket.Name != "b" || r.S3.Bucket.Arn != "arn:aws:s3:::b" {
		t.Errorf("bucket = %+v", r.S3.Bucket)
	}
	if r.S3.Object.Key != "logs/a.txt" || r.S3.Object.Size != 5 {
		t.Errorf("object = %+v", r.S3.Object)
	}
}

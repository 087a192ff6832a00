// Package adapter defines the notification dispatch boundary.
//
// Adapters deliver a matched bucket-notification event to a target function.
// The notify engine owns adapter lifecycle; callers provide configuration only.
package adapter

import "context"

// InvocationEvent is the payload an adapter delivers to a target function
// when a bucket notification handler matches. Body carries the S3-style
// event envelope produced by the notification engine (types.EventEnvelope);
// the remaining fields are routing metadata.
type InvocationEvent struct {
	FunctionARN string `json:"function_arn"`
	EventName   string `json:"event_name"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Body        []byte `json:"-"`
}

// Adapter delivers a matched notification event to its target.
// Implementations must be safe for concurrent use across dispatches.
type Adapter interface {
	// Publish sends the invocation event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *InvocationEvent) error

	// Close releases adapter resources.
	Close() error
}

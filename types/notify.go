package types

import (
	"encoding/xml"
	"strings"
)

// EventType is one of the closed set of bucket events that can trigger a
// notification.
type EventType string

const (
	EventObjectCreatedPut  EventType = "s3:ObjectCreated:Put"
	EventObjectCreatedPost EventType = "s3:ObjectCreated:Post"
	EventObjectCreatedCopy EventType = "s3:ObjectCreated:Copy"
	EventObjectRemoved     EventType = "s3:ObjectRemoved:Delete"
)

// KnownEventTypes is the closed set of events a bucket operation can emit.
var KnownEventTypes = []EventType{
	EventObjectCreatedPut,
	EventObjectCreatedPost,
	EventObjectCreatedCopy,
	EventObjectRemoved,
}

// ValidEventPattern reports whether pattern names at least one known
// event: either a known event verbatim, or a prefix ending in "*" that
// some known event starts with (e.g. "s3:ObjectCreated:*").
func ValidEventPattern(pattern EventType) bool {
	for _, known := range KnownEventTypes {
		if matchEventPattern(pattern, known) {
			return true
		}
	}
	return false
}

// matchEventPattern reports whether event falls under pattern. A pattern
// with a trailing "*" matches every event starting with the preceding
// prefix; otherwise the match is exact.
func matchEventPattern(pattern, event EventType) bool {
	p := string(pattern)
	if strings.HasSuffix(p, "*") {
		return strings.HasPrefix(string(event), p[:len(p)-1])
	}
	return pattern == event
}

// NotificationConfig is a bucket's parsed notification configuration: one
// or more handler bindings, each reacting to a set of event types subject
// to an optional key filter.
type NotificationConfig struct {
	XMLName  xml.Name          `xml:"NotificationConfiguration"`
	Bindings []HandlerBinding `xml:"CloudFunctionConfiguration"`
}

// HandlerBinding binds a set of event types on a bucket to a target
// function ARN, subject to Filter matching the affected key.
type HandlerBinding struct {
	ID          string      `xml:"Id"`
	TargetArn   string      `xml:"CloudFunction"`
	Events      []EventType `xml:"Event"`
	FilterRules filterXML   `xml:"Filter"`
}

// filterXML is the raw XML shape of a filter block; ToFilter converts it
// into the algebraic Filter a HandlerBinding actually matches against.
type filterXML struct {
	Rules []filterRuleXML `xml:"S3Key>FilterRule"`
}

type filterRuleXML struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

// FilterRule is one {Name, Value} pair from a binding's filter block, as
// written in the XML. Exposed for validation; matching goes through
// ToFilter.
type FilterRule struct {
	Name  string
	Value string
}

// RawFilterRules returns the binding's filter rules as written,
// including ones with unsupported names.
func (b HandlerBinding) RawFilterRules() []FilterRule {
	out := make([]FilterRule, 0, len(b.FilterRules.Rules))
	for _, r := range b.FilterRules.Rules {
		out = append(out, FilterRule{Name: r.Name, Value: r.Value})
	}
	return out
}

// Filter is an algebraic predicate over an object key: either a list of
// sub-filters that must ALL match (And), or a leaf key-prefix test
// (Prefix). This replaces a polymorphic filter-object hierarchy with a
// small set of types, each answering through its Match method.
type Filter interface {
	Match(key string) bool
}

// And matches when every sub-filter matches. An empty And matches
// everything, which is what a binding with no filter rules reduces to.
type And []Filter

func (a And) Match(key string) bool {
	for _, f := range a {
		if !f.Match(key) {
			return false
		}
	}
	return true
}

// Prefix matches keys starting with the given string.
type Prefix string

func (p Prefix) Match(key string) bool {
	return len(key) >= len(p) && key[:len(p)] == string(p)
}

// ToFilter converts the parsed XML filter rules into a Filter. Only the
// "prefix" rule name is recognized here; validation of unsupported rule
// names happens at config parse time, before a binding ever matches.
func (b HandlerBinding) ToFilter() Filter {
	var preds And
	for _, r := range b.FilterRules.Rules {
		if r.Name == "prefix" {
			preds = append(preds, Prefix(r.Value))
		}
	}
	return preds
}

// MatchesEvent reports whether this binding should fire for the given
// event type and affected key. Event entries ending in "*" match any
// event under the preceding prefix.
func (b HandlerBinding) MatchesEvent(event EventType, key string) bool {
	matched := false
	for _, e := range b.Events {
		if matchEventPattern(e, event) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return b.ToFilter().Match(key)
}

// Package types holds the data model shared across the platform's storage,
// function, and notification layers.
package types

import "fmt"

// LogRef addresses a single record inside a log-woof log: the log it lives
// in, and the record's index within that log. A LogRef is the only way
// anything in this system points at anything else — object bodies, shard
// chains, bucket index entries, and invocation results are all just records
// reached through a LogRef.
type LogRef struct {
	LogID     uint64 `json:"log_id" msgpack:"log_id"`
	RecordIdx uint64 `json:"record_idx" msgpack:"record_idx"`
}

// NullLogRef is the tombstone value: a LogRef that points at nothing.
// A zero-value LogRef is ambiguous with a legitimate ref into log 0, record
// 0, so callers that need an explicit "no ref" sentinel use IsNull to test
// for it rather than comparing against the zero value directly; NullLogRef
// exists so the chain-terminator check reads the same way everywhere.
var NullLogRef = LogRef{LogID: ^uint64(0), RecordIdx: ^uint64(0)}

// IsNull reports whether ref is the tombstone value.
func (r LogRef) IsNull() bool {
	return r == NullLogRef
}

func (r LogRef) String() string {
	if r.IsNull() {
		return "logref(null)"
	}
	return fmt.Sprintf("logref(%016x:%d)", r.LogID, r.RecordIdx)
}

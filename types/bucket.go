package types

import "time"

// BucketIndexEntry is a single record in a bucket's index log: the
// mapping from an object key to the LogRef where its blob chain begins.
// A Deleted entry with a null HeadShard acts as a tombstone that shadows
// earlier entries for the same key during scan-back lookup.
type BucketIndexEntry struct {
	Key        string    `msgpack:"key"`
	HeadShard  LogRef    `msgpack:"head_shard"`
	Size       uint64    `msgpack:"size"`
	ContentType string   `msgpack:"content_type"`
	Deleted    bool      `msgpack:"deleted"`
	ModifiedAt time.Time `msgpack:"modified_at"`
}

// Bucket is an object bucket's top-level metadata: the log-woof log
// backing its key index, and the parsed notification configuration
// currently attached to it.
type Bucket struct {
	Name           string                 `json:"name"`
	IndexLogID     uint64                 `json:"index_log_id"`
	Notification   *NotificationConfig    `json:"notification,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// ObjectInfo is the resolved view of a GET/HEAD on an object: everything a
// caller needs to read the blob and report its metadata, without requiring
// them to re-walk the index.
type ObjectInfo struct {
	Key         string
	Size        uint64
	ContentType string
	ModifiedAt  time.Time
	HeadShard   LogRef
}

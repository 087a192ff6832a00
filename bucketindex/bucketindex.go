// Package bucketindex maps object keys to blob head shards using a single
// log-woof log per bucket. There is no secondary structure — a lookup
// scans backward from the log's latest record until it finds an entry for
// the requested key, relying on log-woof's append-only ordering to make
// the most recent write for a key the first one found.
package bucketindex

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// DefaultElementSize is the fixed record size for index log entries. It
// must comfortably hold a key, a LogRef, and the entry's bookkeeping
// fields after msgpack encoding.
const DefaultElementSize = 4096

// DefaultCapacity is the default number of index records a bucket's index
// log retains before the oldest entries are evicted by wraparound.
// Eviction drops a key's mapping too once its latest entry falls off the
// log: a key that is not re-written becomes unreachable and Get reports it
// as not found.
const DefaultCapacity = 1 << 20

// Index is a single bucket's key→blob-head mapping.
type Index struct {
	store *woof.Store
	logID uint64
}

// Open attaches to an existing index log.
func Open(store *woof.Store, logID uint64) *Index {
	return &Index{store: store, logID: logID}
}

// Create allocates a fresh, empty index log and returns an Index over it.
func Create(store *woof.Store, capacity uint32) (*Index, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	logID, err := store.Create(DefaultElementSize, capacity)
	if err != nil {
		return nil, err
	}
	return &Index{store: store, logID: logID}, nil
}

// LogID returns the log-woof log id backing this index.
func (idx *Index) LogID() uint64 {
	return idx.logID
}

// Put records key as pointing at headShard with the given size/content
// type. Appends a new entry; does not overwrite or remove any prior entry
// for the same key, since log-woof logs are append-only.
func (idx *Index) Put(entry types.BucketIndexEntry) error {
	encoded, err := msgpack.Marshal(&entry)
	if err != nil {
		return errs.Service("bucketindex.Put", err)
	}
	if _, err := idx.store.Append(idx.logID, encoded); err != nil {
		return errs.Service("bucketindex.Put", err)
	}
	return nil
}

// Delete appends a tombstone entry for key, shadowing any earlier entry
// on the next Get.
func (idx *Index) Delete(key string) error {
	return idx.Put(types.BucketIndexEntry{Key: key, HeadShard: types.NullLogRef, Deleted: true})
}

// Get scans backward from the index log's latest record for the first
// entry matching key. Returns a NotFound error if the key has no live
// entry, whether because it was never written, its only entry has been
// evicted by log wraparound, or its latest entry is a tombstone.
func (idx *Index) Get(key string) (types.BucketIndexEntry, error) {
	latest, err := idx.store.LatestSeqno(idx.logID)
	if err != nil {
		return types.BucketIndexEntry{}, errs.Service("bucketindex.Get", err)
	}
	if latest == woof.InvalidSeqno {
		return types.BucketIndexEntry{}, errs.NotFound("bucketindex.Get", "key not found")
	}

	for seqno := latest; ; seqno-- {
		raw, err := idx.store.Get(idx.logID, seqno)
		if err != nil {
			// Evicted past this point: nothing older is reachable either.
			break
		}

		var entry types.BucketIndexEntry
		if err := msgpack.Unmarshal(raw, &entry); err != nil {
			return types.BucketIndexEntry{}, errs.Service("bucketindex.Get", err)
		}
		if entry.Key == key {
			if entry.Deleted {
				return types.BucketIndexEntry{}, errs.NotFound("bucketindex.Get", "key deleted")
			}
			return entry, nil
		}

		if seqno == 0 {
			break
		}
	}

	return types.BucketIndexEntry{}, errs.NotFound("bucketindex.Get", "key not found")
}

// List scans the entire live index (most recent seqno down to the oldest
// surviving one) and returns the current, non-tombstoned entry for every
// key seen, optionally restricted to keys with the given prefix. Each key
// appears at most once, reflecting only its most recent entry.
func (idx *Index) List(prefix string) ([]types.BucketIndexEntry, error) {
	latest, err := idx.store.LatestSeqno(idx.logID)
	if err != nil {
		return nil, errs.Service("bucketindex.List", err)
	}
	if latest == woof.InvalidSeqno {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []types.BucketIndexEntry

	for seqno := latest; ; seqno-- {
		raw, err := idx.store.Get(idx.logID, seqno)
		if err != nil {
			break
		}

		var entry types.BucketIndexEntry
		if err := msgpack.Unmarshal(raw, &entry); err != nil {
			return nil, errs.Service("bucketindex.List", err)
		}

		if !seen[entry.Key] {
			seen[entry.Key] = true
			if !entry.Deleted && hasPrefix(entry.Key, prefix) {
				out = append(out, entry)
			}
		}

		if seqno == 0 {
			break
		}
	}

	return out, nil
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// Package blobstore implements object bodies as chains of fixed-size
// shards inside log-woof logs. A blob larger than one shard's payload
// capacity is split tail-first: the last slice is written first (with a
// null NextShard), then each earlier slice is written pointing at the
// shard written just before it, so the chain can always be read forward
// from its head without a second pass.
package blobstore

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// DefaultShardBytes is the default payload capacity per shard record.
const DefaultShardBytes = 262144

// DefaultShardsPerLog is the default number of shard records a single
// log-woof log holds before the writer rolls onto a fresh log.
const DefaultShardsPerLog = 64

// Store reads and writes blob bodies as shard chains over a woof.Store.
type Store struct {
	woof   *woof.Store
	writer *LogWriter
}

// SetCollector wires a metrics collector into the writer. Optional; a
// store without one simply doesn't count shards and rolls.
func (s *Store) SetCollector(c *metrics.Collector) {
	s.writer.metrics = c
}

// New creates a Store backed by woofStore, rolling shard logs of
// shardBytes payload capacity and shardsPerLog records each.
func New(woofStore *woof.Store, shardBytes, shardsPerLog int) (*Store, error) {
	if shardBytes <= 0 {
		shardBytes = DefaultShardBytes
	}
	if shardsPerLog <= 0 {
		shardsPerLog = DefaultShardsPerLog
	}

	w, err := newLogWriter(woofStore, shardBytes, shardsPerLog)
	if err != nil {
		return nil, err
	}

	return &Store{woof: woofStore, writer: w}, nil
}

// WriteBlob splits data into shard-sized slices and writes them as a
// chain, tail-first, returning the LogRef of the chain's head shard.
func (s *Store) WriteBlob(data []byte) (types.LogRef, error) {
	payloadSize := s.writer.shardPayload
	chunks := splitChunks(data, payloadSize)

	// DataRemaining counts the bytes from a shard to the end of the
	// blob, so it accumulates as the chain is written tail-first: the
	// last-written (head) shard carries the full blob length.
	next := types.NullLogRef
	remaining := uint64(0)

	for i := len(chunks) - 1; i >= 0; i-- {
		remaining += uint64(len(chunks[i]))
		shard := types.Shard{
			NextShard:     next,
			DataRemaining: remaining,
			Payload:       chunks[i],
		}
		ref, err := s.writer.appendShard(shard)
		if err != nil {
			return types.NullLogRef, err
		}
		next = ref
	}

	return next, nil
}

// ReadBlob walks the shard chain starting at head and returns the
// reassembled blob.
func (s *Store) ReadBlob(head types.LogRef) ([]byte, error) {
	if head.IsNull() {
		return nil, errs.NotFound("blobstore.ReadBlob", "null head shard")
	}

	ref := head
	var first types.Shard
	if err := s.getShard(ref, &first); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, first.DataRemaining)
	buf = append(buf, first.Payload...)
	ref = first.NextShard

	for !ref.IsNull() {
		var shard types.Shard
		if err := s.getShard(ref, &shard); err != nil {
			return nil, err
		}
		buf = append(buf, shard.Payload...)
		ref = shard.NextShard
	}

	return buf, nil
}

func (s *Store) getShard(ref types.LogRef, out *types.Shard) error {
	raw, err := s.woof.Get(ref.LogID, ref.RecordIdx)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return errs.Service("blobstore.getShard", err)
	}
	return nil
}

// splitChunks divides data into slices of at most size bytes each. An
// empty input produces a single empty chunk so a zero-length blob still
// gets one (empty-payload) shard and a resolvable head ref.
func splitChunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}

	var chunks [][]byte
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end])
	}
	return chunks
}

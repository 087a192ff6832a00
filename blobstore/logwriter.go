package blobstore

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// LogWriter appends shard records into a sequence of log-woof logs,
// rolling onto a fresh log (under a new random id, via woof.Store.Create)
// once the current one has accumulated shardsPerLog records. log-woof
// logs wrap silently rather than erroring when full, so "out of space" is
// a capacity count LogWriter tracks itself, not a condition woof reports.
type LogWriter struct {
	store   *woof.Store
	metrics *metrics.Collector

	shardPayload int
	shardsPerLog int
	elementSize  uint32

	mu           sync.Mutex
	currentLogID uint64
	currentCount int
}

func newLogWriter(store *woof.Store, shardBytes, shardsPerLog int) (*LogWriter, error) {
	w := &LogWriter{
		store:        store,
		shardPayload: shardBytes,
		shardsPerLog: shardsPerLog,
		// Encoded shard records carry msgpack framing overhead plus the
		// LogRef and length fields alongside the raw payload bytes.
		elementSize: uint32(shardBytes + 128),
	}
	if err := w.roll(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *LogWriter) roll() error {
	logID, err := w.store.Create(w.elementSize, uint32(w.shardsPerLog))
	if err != nil {
		return errs.Service("blobstore.LogWriter.roll", err)
	}
	w.currentLogID = logID
	w.currentCount = 0
	return nil
}

// appendShard encodes shard and appends it to the current log, rolling
// onto a new log first if the current one is at capacity.
func (w *LogWriter) appendShard(shard types.Shard) (types.LogRef, error) {
	encoded, err := msgpack.Marshal(&shard)
	if err != nil {
		return types.NullLogRef, errs.Service("blobstore.LogWriter.appendShard", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentCount >= w.shardsPerLog {
		if err := w.roll(); err != nil {
			return types.NullLogRef, err
		}
		w.metrics.IncLogRolled()
	}

	seqno, err := w.store.Append(w.currentLogID, encoded)
	if err != nil {
		return types.NullLogRef, errs.Service("blobstore.LogWriter.appendShard", err)
	}
	w.currentCount++
	w.metrics.IncShardsWritten(1)

	return types.LogRef{LogID: w.currentLogID, RecordIdx: seqno}, nil
}

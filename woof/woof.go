// Package woof implements the log-woof primitive: a fixed-record-size,
// append-only circular log. Every higher layer in this platform — blob
// shard chains, bucket key indexes, function invocation and result
// channels — is built entirely out of logs created through this package;
// nothing above it touches a file directly.
//
// A log is identified by a random 64-bit id and holds a fixed number of
// fixed-size records. Appending past capacity evicts the oldest record
// (the log wraps), so callers that need durability beyond the ring size
// must roll onto a fresh log themselves (see blobstore's LogWriter).
package woof

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/woofstack/platform/errs"
)

// InvalidSeqno is returned by LatestSeqno for an empty log, and is never a
// valid return value from Append.
const InvalidSeqno = ^uint64(0)

// headerMagic guards against opening a non-woof file as a log.
const headerMagic = uint32(0x776f6f66) // "woof"

// headerSize is the fixed on-disk prefix before record data begins:
// magic(4) + elementSize(4) + capacity(4) + count(8).
const headerSize = 4 + 4 + 4 + 8

// Store manages a directory of log-woof logs, each backed by its own file.
// Concurrent access to distinct logs never blocks; concurrent access to
// the same log is serialized by that log's own mutex.
type Store struct {
	dir string

	mu   sync.RWMutex
	logs map[uint64]*log
}

// log is one open, fixed-record circular log file.
type log struct {
	mu          sync.Mutex
	file        *os.File
	elementSize uint32
	capacity    uint32
	count       uint64 // total records ever appended
}

// Open creates a Store rooted at dir, creating the directory if needed.
// Existing log files in dir are not eagerly opened; they're picked up on
// first access via their id.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Service("woof.Open", err)
	}
	return &Store{dir: dir, logs: make(map[uint64]*log)}, nil
}

func (s *Store) path(logID uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%016x.woof", logID))
}

// Create allocates a new log with the given fixed record size and
// capacity (in records), under a random 64-bit id, and returns that id.
func (s *Store) Create(elementSize, capacity uint32) (uint64, error) {
	if elementSize == 0 || capacity == 0 {
		return 0, errs.Invalid("woof.Create", "elementSize and capacity must be nonzero")
	}

	logID, err := randomLogID()
	if err != nil {
		return 0, errs.Service("woof.Create", err)
	}

	if err := s.createWithID(logID, elementSize, capacity); err != nil {
		return 0, err
	}
	return logID, nil
}

// createWithID creates a log under a caller-chosen id. Used by components
// that need a deterministic id scheme alongside log-woof's usual random
// ids (none currently do, but it keeps Create's random-id path and a
// fixed-id path from diverging in behavior).
func (s *Store) createWithID(logID uint64, elementSize, capacity uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logs[logID]; exists {
		return errs.Conflict("woof.Create", "log id already exists")
	}

	f, err := os.OpenFile(s.path(logID), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errs.Service("woof.Create", err)
	}

	l := &log{file: f, elementSize: elementSize, capacity: capacity}
	if err := l.writeHeader(); err != nil {
		_ = f.Close()
		return errs.Service("woof.Create", err)
	}

	s.logs[logID] = l
	return nil
}

// Append writes data as the next record in logID and returns its seqno.
// len(data) must not exceed the log's element size; shorter records are
// zero-padded to fill the fixed slot.
func (s *Store) Append(logID uint64, data []byte) (uint64, error) {
	l, err := s.get(logID)
	if err != nil {
		return 0, err
	}
	return l.append(data)
}

// Get returns the record stored at seqno in logID. Returns a NotFound
// error if seqno has been evicted by the log wrapping, or was never
// written.
func (s *Store) Get(logID uint64, seqno uint64) ([]byte, error) {
	l, err := s.get(logID)
	if err != nil {
		return nil, err
	}
	return l.get(seqno)
}

// LatestSeqno returns the most recently appended seqno in logID, or
// InvalidSeqno if the log is empty.
func (s *Store) LatestSeqno(logID uint64) (uint64, error) {
	l, err := s.get(logID)
	if err != nil {
		return 0, err
	}
	return l.latestSeqno(), nil
}

// ElementSize returns the fixed record size of logID.
func (s *Store) ElementSize(logID uint64) (uint32, error) {
	l, err := s.get(logID)
	if err != nil {
		return 0, err
	}
	return l.elementSize, nil
}

// Close closes every open log file held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, l := range s.logs {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.logs, id)
	}
	return firstErr
}

// get returns the open *log for logID, opening its backing file from disk
// on first access if it isn't already tracked in memory.
func (s *Store) get(logID uint64) (*log, error) {
	s.mu.RLock()
	l, ok := s.logs[logID]
	s.mu.RUnlock()
	if ok {
		return l, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[logID]; ok {
		return l, nil
	}

	f, err := os.OpenFile(s.path(logID), os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("woof.get", "log does not exist")
		}
		return nil, errs.Service("woof.get", err)
	}

	l = &log{file: f}
	if err := l.readHeader(); err != nil {
		_ = f.Close()
		return nil, errs.Service("woof.get", err)
	}

	s.logs[logID] = l
	return l, nil
}

func (l *log) writeHeader() error {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], headerMagic)
	binary.BigEndian.PutUint32(hdr[4:8], l.elementSize)
	binary.BigEndian.PutUint32(hdr[8:12], l.capacity)
	binary.BigEndian.PutUint64(hdr[12:20], l.count)
	_, err := l.file.WriteAt(hdr[:], 0)
	return err
}

func (l *log) readHeader() error {
	var hdr [headerSize]byte
	if _, err := l.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(hdr[0:4]); magic != headerMagic {
		return fmt.Errorf("not a woof log (bad magic)")
	}
	l.elementSize = binary.BigEndian.Uint32(hdr[4:8])
	l.capacity = binary.BigEndian.Uint32(hdr[8:12])
	l.count = binary.BigEndian.Uint64(hdr[12:20])
	return nil
}

func (l *log) slotOffset(seqno uint64) int64 {
	slot := seqno % uint64(l.capacity)
	return headerSize + int64(slot)*int64(l.elementSize)
}

func (l *log) append(data []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if uint32(len(data)) > l.elementSize {
		return 0, errs.TooLarge("woof.Append", fmt.Sprintf("record of %d bytes exceeds element size %d", len(data), l.elementSize))
	}

	seqno := l.count
	buf := make([]byte, l.elementSize)
	copy(buf, data)

	if _, err := l.file.WriteAt(buf, l.slotOffset(seqno)); err != nil {
		return 0, errs.Service("woof.Append", err)
	}

	l.count++
	if err := l.writeHeader(); err != nil {
		return 0, errs.Service("woof.Append", err)
	}

	return seqno, nil
}

func (l *log) get(seqno uint64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seqno == InvalidSeqno || seqno >= l.count {
		return nil, errs.NotFound("woof.Get", "seqno not found")
	}
	if l.count > uint64(l.capacity) && seqno < l.count-uint64(l.capacity) {
		return nil, errs.NotFound("woof.Get", "seqno evicted by log wraparound")
	}

	buf := make([]byte, l.elementSize)
	if _, err := l.file.ReadAt(buf, l.slotOffset(seqno)); err != nil {
		return nil, errs.Service("woof.Get", err)
	}
	return buf, nil
}

func (l *log) latestSeqno() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return InvalidSeqno
	}
	return l.count - 1
}

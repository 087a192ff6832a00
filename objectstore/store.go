// Package objectstore implements the S3-style object service's state: a
// set of buckets, each backed by a scan-back key index over log-woof and
// blob bodies sharded across rolling storage logs. Bucket mutations emit
// notification events through an optional notify engine.
package objectstore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woofstack/platform/blobstore"
	"github.com/woofstack/platform/bucketindex"
	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/notify"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// MaxKeyLength bounds an object key, matching the index entry budget.
const MaxKeyLength = 255

// Config holds the object store's directories and shard tunables.
type Config struct {
	// Dir is the object service's data directory: log-woof logs, bucket
	// metadata, and notification configs all live here.
	Dir string
	// ShardBytes is the payload capacity per blob shard.
	ShardBytes int
	// ShardsPerLog is the storage-log roll threshold.
	ShardsPerLog int
	// IndexCapacity is each bucket index log's record capacity.
	IndexCapacity uint32
}

// bucket is one bucket's in-memory state. Its mutex serialises the
// bucket's operations, including notification-config file I/O.
type bucket struct {
	mu    sync.Mutex
	meta  types.Bucket
	index *bucketindex.Index
	notif *types.NotificationConfig
}

// Store is the object service's root object.
type Store struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Collector
	engine  *notify.Engine

	woof  *woof.Store
	blobs *blobstore.Store

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New opens (or creates) an object store rooted at cfg.Dir. engine may
// be nil when notifications are disabled.
func New(cfg Config, engine *notify.Engine, logger *zap.Logger, collector *metrics.Collector) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	woofStore, err := woof.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.New(woofStore, cfg.ShardBytes, cfg.ShardsPerLog)
	if err != nil {
		_ = woofStore.Close()
		return nil, err
	}
	blobs.SetCollector(collector)

	return &Store{
		cfg:     cfg,
		log:     logger,
		metrics: collector,
		engine:  engine,
		woof:    woofStore,
		blobs:   blobs,
		buckets: make(map[string]*bucket),
	}, nil
}

// Close flushes nothing (appends are synchronous) but releases every
// open log file and waits out in-flight notification dispatches.
func (s *Store) Close() error {
	if s.engine != nil {
		_ = s.engine.Close()
	}
	return s.woof.Close()
}

// EnsureBucket returns the named bucket, creating it (and its index log)
// on first reference. Buckets auto-exist: a PUT to a fresh name works
// without a prior create call.
func (s *Store) EnsureBucket(name string) error {
	_, err := s.ensure(name)
	return err
}

// PutObject stores data under bucket/key and emits ObjectCreated:Put.
func (s *Store) PutObject(bucketName, key string, data []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	b, err := s.ensure(bucketName)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	head, err := s.blobs.WriteBlob(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	err = b.index.Put(types.BucketIndexEntry{
		Key:         key,
		HeadShard:   head,
		Size:        uint64(len(data)),
		ContentType: contentType,
		ModifiedAt:  time.Now().UTC(),
	})
	notifCfg := b.notif
	b.mu.Unlock()
	if err != nil {
		return err
	}

	s.metrics.IncObjectPut(int64(len(data)))
	s.engine.Notify(notifCfg, types.EventObjectCreatedPut, bucketName, key, uint64(len(data)))
	return nil
}

// GetObject reads the current blob for bucket/key along with its
// metadata.
func (s *Store) GetObject(bucketName, key string) ([]byte, types.ObjectInfo, error) {
	b, err := s.lookup(bucketName)
	if err != nil {
		return nil, types.ObjectInfo{}, err
	}

	b.mu.Lock()
	entry, err := b.index.Get(key)
	b.mu.Unlock()
	if err != nil {
		return nil, types.ObjectInfo{}, err
	}

	data, err := s.blobs.ReadBlob(entry.HeadShard)
	if err != nil {
		return nil, types.ObjectInfo{}, err
	}

	s.metrics.IncObjectGet(int64(len(data)))
	return data, types.ObjectInfo{
		Key:         entry.Key,
		Size:        entry.Size,
		ContentType: entry.ContentType,
		ModifiedAt:  entry.ModifiedAt,
		HeadShard:   entry.HeadShard,
	}, nil
}

// DeleteObject appends a tombstone for bucket/key and emits
// ObjectRemoved:Delete. Deleting an absent key is not an error, matching
// S3's idempotent delete.
func (s *Store) DeleteObject(bucketName, key string) error {
	b, err := s.lookup(bucketName)
	if err != nil {
		return err
	}

	b.mu.Lock()
	err = b.index.Delete(key)
	notifCfg := b.notif
	b.mu.Unlock()
	if err != nil {
		return err
	}

	s.metrics.IncObjectDeleted()
	s.engine.Notify(notifCfg, types.EventObjectRemoved, bucketName, key, 0)
	return nil
}

// ListObjects returns the live entries in the bucket, optionally
// restricted by key prefix.
func (s *Store) ListObjects(bucketName, prefix string) ([]types.BucketIndexEntry, error) {
	b, err := s.lookup(bucketName)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.List(prefix)
}

// SetNotification validates and installs the bucket's notification
// configuration, persisting the raw XML atomically next to the bucket's
// metadata.
func (s *Store) SetNotification(bucketName string, xmlData []byte) error {
	cfg, err := notify.ParseConfig(xmlData)
	if err != nil {
		return err
	}

	b, err := s.ensure(bucketName)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	path := s.notifPath(bucketName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, xmlData, 0o644); err != nil {
		return errs.Service("objectstore.SetNotification", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Service("objectstore.SetNotification", err)
	}

	b.notif = cfg
	s.log.Info("notification config updated",
		zap.String("bucket", bucketName),
		zap.Int("bindings", len(cfg.Bindings)))
	return nil
}

// Notification returns the bucket's parsed notification configuration,
// nil if none is installed.
func (s *Store) Notification(bucketName string) (*types.NotificationConfig, error) {
	b, err := s.lookup(bucketName)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notif, nil
}

func validateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return errs.Invalid("objectstore", "object key must be 1-255 bytes")
	}
	return nil
}

func validateBucketName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return errs.Invalid("objectstore", "invalid bucket name: "+name)
	}
	return nil
}

// encodedName is the filesystem-safe form of a bucket name used for its
// sidecar files.
func encodedName(name string) string {
	return base64.URLEncoding.EncodeToString([]byte(name))
}

func (s *Store) metaPath(name string) string {
	return filepath.Join(s.cfg.Dir, encodedName(name)+".bucket.json")
}

func (s *Store) notifPath(name string) string {
	return filepath.Join(s.cfg.Dir, encodedName(name)+".xml")
}

// lookup returns the bucket if it exists (in memory or on disk) without
// creating it.
func (s *Store) lookup(name string) (*bucket, error) {
	if err := validateBucketName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.buckets[name] = b
	return b, nil
}

// ensure returns the bucket, creating it if it doesn't exist yet.
func (s *Store) ensure(name string) (*bucket, error) {
	b, err := s.lookup(name)
	if err == nil {
		return b, nil
	}
	if errs.KindOf(err) != errs.ResourceNotFound {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}

	idx, err := bucketindex.Create(s.woof, s.cfg.IndexCapacity)
	if err != nil {
		return nil, err
	}

	meta := types.Bucket{
		Name:       name,
		IndexLogID: idx.LogID(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.writeMeta(meta); err != nil {
		return nil, err
	}

	b = &bucket{meta: meta, index: idx}
	s.buckets[name] = b
	s.log.Info("bucket created",
		zap.String("bucket", name),
		zap.Uint64("index_log", meta.IndexLogID))
	return b, nil
}

// load reconstructs a bucket from its sidecar files: metadata JSON for
// the index log id, and the notification XML if one was installed.
func (s *Store) load(name string) (*bucket, error) {
	data, err := os.ReadFile(s.metaPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("objectstore", "bucket not found: "+name)
		}
		return nil, errs.Service("objectstore.load", err)
	}

	var meta types.Bucket
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errs.Service("objectstore.load", err)
	}

	b := &bucket{meta: meta, index: bucketindex.Open(s.woof, meta.IndexLogID)}

	if xmlData, err := os.ReadFile(s.notifPath(name)); err == nil {
		cfg, parseErr := notify.ParseConfig(xmlData)
		if parseErr != nil {
			s.log.Warn("ignoring unreadable notification config",
				zap.String("bucket", name), zap.Error(parseErr))
		} else {
			b.notif = cfg
		}
	}

	return b, nil
}

func (s *Store) writeMeta(meta types.Bucket) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errs.Service("objectstore.writeMeta", err)
	}

	path := s.metaPath(meta.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Service("objectstore.writeMeta", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Service("objectstore.writeMeta", err)
	}
	return nil
}

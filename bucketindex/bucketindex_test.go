package bucketindex

import (
	"sort"
	"testing"
	"time"

	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ws, err := woof.Open(t.TempDir())
	if err != nil {
		t.Fatalf("woof.Open: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	idx, err := Create(ws, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return idx
}

func TestPutGet(t *testing.T) {
	idx := newTestIndex(t)

	entry := types.BucketIndexEntry{
		Key:         "logs/a.txt",
		HeadShard:   types.LogRef{LogID: 1, RecordIdx: 0},
		Size:        42,
		ContentType: "text/plain",
		ModifiedAt:  time.Now(),
	}
	if err := idx.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := idx.Get("logs/a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HeadShard != entry.HeadShard || got.Size != entry.Size {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestGet_MissingKeyFails(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.Get("nope"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestGet_ReturnsMostRecentEntry(t *testing.T) {
	idx := newTestIndex(t)

	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 1, RecordIdx: 0}})
	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 2, RecordIdx: 0}})

	got, err := idx.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HeadShard.LogID != 2 {
		t.Errorf("expected most recent entry (logID 2), got %d", got.HeadShard.LogID)
	}
}

func TestDelete_ShadowsEarlierEntry(t *testing.T) {
	idx := newTestIndex(t)

	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 1, RecordIdx: 0}})
	if err := idx.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := idx.Get("k"); err == nil {
		t.Fatal("expected deleted key to be not found")
	}
}

func TestPut_AfterDelete_Resurrects(t *testing.T) {
	idx := newTestIndex(t)

	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 1, RecordIdx: 0}})
	_ = idx.Delete("k")
	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 3, RecordIdx: 0}})

	got, err := idx.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HeadShard.LogID != 3 {
		t.Errorf("expected resurrected entry, got logID %d", got.HeadShard.LogID)
	}
}

func TestList_PrefixAndDedup(t *testing.T) {
	idx := newTestIndex(t)

	_ = idx.Put(types.BucketIndexEntry{Key: "logs/a.txt", HeadShard: types.LogRef{LogID: 1}})
	_ = idx.Put(types.BucketIndexEntry{Key: "images/b.png", HeadShard: types.LogRef{LogID: 2}})
	_ = idx.Put(types.BucketIndexEntry{Key: "logs/a.txt", HeadShard: types.LogRef{LogID: 3}}) // overwrite
	_ = idx.Put(types.BucketIndexEntry{Key: "logs/c.txt", HeadShard: types.LogRef{LogID: 4}})

	entries, err := idx.List("logs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	sort.Strings(keys)

	if len(keys) != 2 || keys[0] != "logs/a.txt" || keys[1] != "logs/c.txt" {
		t.Errorf("unexpected keys %v", keys)
	}

	for _, e := range entries {
		if e.Key == "logs/a.txt" && e.HeadShard.LogID != 3 {
			t.Errorf("expected deduped entry to be latest write (logID 3), got %d", e.HeadShard.LogID)
		}
	}
}

func TestList_ExcludesDeleted(t *testing.T) {
	idx := newTestIndex(t)

	_ = idx.Put(types.BucketIndexEntry{Key: "k", HeadShard: types.LogRef{LogID: 1}})
	_ = idx.Delete("k")

	entries, err := idx.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no live entries, got %d", len(entries))
	}
}

func TestList_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	entries, err := idx.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil for empty index, got %v", entries)
	}
}

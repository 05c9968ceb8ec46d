package kvstore

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/flashkv/diskkv/blobstore"
)

func tempStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	idx, err := os.CreateTemp(t.TempDir(), "idx-*")
	if err != nil {
		t.Fatalf("CreateTemp idx: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	blob, err := os.CreateTemp(t.TempDir(), "blob-*")
	if err != nil {
		t.Fatalf("CreateTemp blob: %v", err)
	}
	t.Cleanup(func() { blob.Close() })

	s, err := Open(idx, blob, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// TestSetGetDeleteRoundTrip is scenario S3.
func TestSetGetDeleteRoundTrip(t *testing.T) {
	s := tempStore(t)

	if err := s.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get([]byte("k1"))
	if err != nil || !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := s.Delete([]byte("k1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get([]byte("k1")); err != ErrNotFound {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete([]byte("k1")); err != ErrNotFound {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

// TestOverwriteReusesSlotFreesOldValue covers invariant: Set on an
// existing key reuses its slot and does not leak the old value blob.
func TestOverwriteReusesSlotFreesOldValue(t *testing.T) {
	s := tempStore(t)

	if err := s.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set 1: %v", err)
	}
	index, res, err := s.findSlot([]byte("k"))
	if err != nil || res != resolutionHit {
		t.Fatalf("findSlot after first set: %v %v", res, err)
	}
	before, err := s.readSlot(index)
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}

	if err := s.Set([]byte("k"), []byte("v2-longer")); err != nil {
		t.Fatalf("Set 2: %v", err)
	}
	after, err := s.readSlot(index)
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}
	if after.kptr != before.kptr {
		t.Fatalf("kptr changed on overwrite: %d -> %d", before.kptr, after.kptr)
	}
	if after.vptr == before.vptr {
		t.Fatalf("vptr did not change on overwrite")
	}

	got, err := s.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v2-longer")) {
		t.Fatalf("Get after overwrite = %q, %v", got, err)
	}
	if _, err := s.blobs.Get(before.vptr); err != blobstore.ErrDeleted {
		t.Fatalf("old value blob after overwrite = %v, want ErrDeleted", err)
	}
}

// TestGrowthDoublesTableSize is scenario S4: inserting enough distinct
// keys to fill the initial 8-slot table triggers a doubling to 16, and
// every previously inserted key remains retrievable afterward.
func TestGrowthDoublesTableSize(t *testing.T) {
	s := tempStore(t)

	keys := make([][]byte, 0, initialM+1)
	for i := 0; i < initialM+1; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		keys = append(keys, k)
		if err := s.Set(k, []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}

	if s.m != initialM*2 {
		t.Fatalf("table size after growth = %d, want %d", s.m, initialM*2)
	}
	if s.liveSlots != uint64(len(keys)) {
		t.Fatalf("liveSlots = %d, want %d", s.liveSlots, len(keys))
	}

	for i, k := range keys {
		got, err := s.Get(k)
		if err != nil {
			t.Fatalf("Get %q after growth: %v", k, err)
		}
		want := []byte(fmt.Sprintf("val-%d", i))
		if !bytes.Equal(got, want) {
			t.Fatalf("Get %q = %q, want %q", k, got, want)
		}
	}
}

// TestReopenPreservesState is scenario S5: closing and reopening a store
// preserves the table size and the live-slot count, a deleted key stays
// absent, and a surviving key keeps its value.
func TestReopenPreservesState(t *testing.T) {
	idx, err := os.CreateTemp(t.TempDir(), "idx-*")
	if err != nil {
		t.Fatalf("CreateTemp idx: %v", err)
	}
	defer idx.Close()
	blob, err := os.CreateTemp(t.TempDir(), "blob-*")
	if err != nil {
		t.Fatalf("CreateTemp blob: %v", err)
	}
	defer blob.Close()

	s, err := Open(idx, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < initialM+1; i++ {
		if err := s.Set([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	if err := s.Delete([]byte("key-0")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	wantM := s.m
	wantLive := s.liveSlots

	s2, err := Open(idx, blob)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.m != wantM {
		t.Fatalf("reopened m = %d, want %d", s2.m, wantM)
	}
	if s2.liveSlots != wantLive {
		t.Fatalf("reopened liveSlots = %d, want %d", s2.liveSlots, wantLive)
	}
	if _, err := s2.Get([]byte("key-0")); err != ErrNotFound {
		t.Fatalf("reopened Get key-0 = %v, want ErrNotFound", err)
	}
	got, err := s2.Get([]byte("key-1"))
	if err != nil || !bytes.Equal(got, []byte("val-1")) {
		t.Fatalf("reopened Get key-1 = %q, %v", got, err)
	}
}

// TestProbeCollisionIndependentLookup is scenario S6: two keys whose
// initial probe index collides modulo the table size must both be
// insertable and independently retrievable.
func TestProbeCollisionIndependentLookup(t *testing.T) {
	s := tempStore(t)

	var k1, k2 []byte
	for i := 0; i < 100000 && (k1 == nil || k2 == nil); i++ {
		k := []byte(fmt.Sprintf("cand-%d", i))
		if hashKey(k)%s.m == 0 {
			if k1 == nil {
				k1 = k
			} else if k2 == nil && !bytes.Equal(k, k1) {
				k2 = k
			}
		}
	}
	if k1 == nil || k2 == nil {
		t.Fatalf("failed to find two colliding candidate keys")
	}

	if err := s.Set(k1, []byte("v1")); err != nil {
		t.Fatalf("Set k1: %v", err)
	}
	if err := s.Set(k2, []byte("v2")); err != nil {
		t.Fatalf("Set k2: %v", err)
	}

	got1, err := s.Get(k1)
	if err != nil || !bytes.Equal(got1, []byte("v1")) {
		t.Fatalf("Get k1 = %q, %v", got1, err)
	}
	got2, err := s.Get(k2)
	if err != nil || !bytes.Equal(got2, []byte("v2")) {
		t.Fatalf("Get k2 = %q, %v", got2, err)
	}

	if err := s.Delete(k1); err != nil {
		t.Fatalf("Delete k1: %v", err)
	}
	got2again, err := s.Get(k2)
	if err != nil || !bytes.Equal(got2again, []byte("v2")) {
		t.Fatalf("Get k2 after deleting k1 = %q, %v", got2again, err)
	}
}

// TestContainsMatchesGet covers invariant: Contains agrees with Get's
// presence/absence outcome, including with a bloom filter enabled.
func TestContainsMatchesGet(t *testing.T) {
	s := tempStore(t, WithBloomFilter(100, 0.01))

	if s.Contains([]byte("missing")) {
		t.Fatalf("Contains(missing) = true before any insert")
	}
	if _, err := s.Get([]byte("missing")); err != ErrNotFound {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := s.Set([]byte("present"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !s.Contains([]byte("present")) {
		t.Fatalf("Contains(present) = false after Set")
	}
	if _, err := s.Get([]byte("present")); err != nil {
		t.Fatalf("Get(present) after Set = %v", err)
	}
	if err := s.Delete([]byte("present")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Contains([]byte("present")) {
		t.Fatalf("Contains(present) = true after Delete")
	}
	if _, err := s.Get([]byte("present")); err != ErrNotFound {
		t.Fatalf("Get(present) after Delete = %v, want ErrNotFound", err)
	}
}

// TestItemsVisitsEveryLiveKeyOnce covers invariant: Items yields exactly
// the set of live keys, each exactly once, regardless of slot order.
func TestItemsVisitsEveryLiveKeyOnce(t *testing.T) {
	s := tempStore(t)

	want := map[string]string{}
	for i := 0; i < 5; i++ {
		k := fmt.Sprintf("k%d", i)
		v := fmt.Sprintf("v%d", i)
		want[k] = v
		if err := s.Set([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := s.Delete([]byte("k2")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	delete(want, "k2")

	got := map[string]string{}
	yielded := 0
	for pair, err := range s.Items() {
		if err != nil {
			t.Fatalf("Items: %v", err)
		}
		got[string(pair.Key)] = string(pair.Value)
		yielded++
	}

	if yielded != len(want) {
		t.Fatalf("Items yielded %d pairs, want %d", yielded, len(want))
	}
	if len(got) != len(want) {
		t.Fatalf("Items returned %d pairs, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("Items[%q] = %q, want %q", k, got[k], v)
		}
	}
}

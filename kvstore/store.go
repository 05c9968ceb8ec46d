// Package kvstore implements the open-addressed hash index layered over a
// blob heap: a fixed-width slot table that maps key hashes to the blob
// offsets of the key and value bytes, doubling in place as it fills.
package kvstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/flashkv/diskkv/blobstore"
)

// initialM is the table size a freshly created index starts at.
const initialM = 8

// Store pairs an index file (the slot table) with a blob-store file (keys
// and values). Both files are held open for the lifetime of the Store.
type Store struct {
	idx   *os.File
	blobs *blobstore.BlobStore

	m uint64 // current table size, a power of two

	emptySlots uint64
	liveSlots  uint64

	bloom *bloom.BloomFilter
}

// Open constructs a Store over idx and blob. Both files may be empty (a
// brand new store) or hold a previously closed store's state.
func Open(idx, blob *os.File, opts ...Option) (*Store, error) {
	blobWasEmpty, err := fileIsEmpty(blob)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}

	bs, err := blobstore.New(blob)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}
	if blobWasEmpty {
		if err := bs.ReserveOffsetZero(); err != nil {
			return nil, fmt.Errorf("kvstore: open: %w", err)
		}
	}

	s := &Store{idx: idx, blobs: bs}
	for _, opt := range opts {
		opt(s)
	}
	if s.m == 0 {
		s.m = initialM
	}

	size, err := idx.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}
	if size == 0 {
		if err := idx.Truncate(int64(s.m) * slotSize); err != nil {
			return nil, fmt.Errorf("kvstore: open: %w", err)
		}
	} else {
		if uint64(size)%slotSize != 0 {
			return nil, fmt.Errorf("kvstore: open: index file size %d not a multiple of slot size %d", size, slotSize)
		}
		s.m = uint64(size) / slotSize
	}

	if err := s.scanSlots(); err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}
	return s, nil
}

func fileIsEmpty(f *os.File) (bool, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

// scanSlots walks the whole table once, classifying every slot and
// rebuilding the bloom filter (if enabled) from live keys.
func (s *Store) scanSlots() error {
	s.emptySlots, s.liveSlots = 0, 0
	for i := uint64(0); i < s.m; i++ {
		sl, err := s.readSlot(i)
		if err != nil {
			return err
		}
		switch {
		case sl.empty():
			s.emptySlots++
		case sl.tombstone():
			// neither empty nor live; does not count toward either total
		default:
			s.liveSlots++
			if s.bloom != nil {
				key, err := s.blobs.Get(sl.kptr)
				if err != nil {
					return err
				}
				s.bloom.Add(key)
			}
		}
	}
	return nil
}

func (s *Store) readSlot(i uint64) (slot, error) {
	buf := make([]byte, slotSize)
	if _, err := s.idx.ReadAt(buf, int64(i)*slotSize); err != nil {
		return slot{}, fmt.Errorf("kvstore: read slot %d: %w", i, err)
	}
	return slot{
		kptr: binary.LittleEndian.Uint64(buf[0:8]),
		vptr: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func (s *Store) writeSlot(i uint64, sl slot) error {
	buf := make([]byte, slotSize)
	binary.LittleEndian.PutUint64(buf[0:8], sl.kptr)
	binary.LittleEndian.PutUint64(buf[8:16], sl.vptr)
	if _, err := s.idx.WriteAt(buf, int64(i)*slotSize); err != nil {
		return fmt.Errorf("kvstore: write slot %d: %w", i, err)
	}
	if err := s.idx.Sync(); err != nil {
		return fmt.Errorf("kvstore: write slot %d: %w", i, err)
	}
	return nil
}

// Get returns the value stored for key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.bloom != nil && !s.bloom.Test(key) {
		return nil, ErrNotFound
	}

	index, res, err := s.findSlot(key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	if res != resolutionHit {
		return nil, ErrNotFound
	}
	sl, err := s.readSlot(index)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	value, err := s.blobs.Get(sl.vptr)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	return value, nil
}

// Contains reports whether key is present. Internal errors are treated as
// absence rather than propagated, matching the bloom filter's own
// false-positive-only failure contract — a caller needing to distinguish
// "not found" from "I/O error" should use Get instead.
func (s *Store) Contains(key []byte) bool {
	if s.bloom != nil && !s.bloom.Test(key) {
		return false
	}
	_, res, err := s.findSlot(key)
	if err != nil {
		return false
	}
	return res == resolutionHit
}

// Set stores value under key, overwriting any existing value. Overwriting
// a key deletes its old value blob so repeated Sets on the same key never
// leak storage.
func (s *Store) Set(key, value []byte) error {
	index, res, err := s.findSlot(key)
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}

	if res == resolutionHit {
		sl, err := s.readSlot(index)
		if err != nil {
			return fmt.Errorf("kvstore: set: %w", err)
		}
		newVptr, err := s.blobs.Add(value)
		if err != nil {
			return fmt.Errorf("kvstore: set: %w", err)
		}
		if err := s.blobs.Delete(sl.vptr); err != nil {
			return fmt.Errorf("kvstore: set: %w", err)
		}
		if err := s.writeSlot(index, slot{kptr: sl.kptr, vptr: newVptr}); err != nil {
			return fmt.Errorf("kvstore: set: %w", err)
		}
		return nil
	}

	kptr, err := s.blobs.Add(key)
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	vptr, err := s.blobs.Add(value)
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	if err := s.writeSlot(index, slot{kptr: kptr, vptr: vptr}); err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}

	s.liveSlots++
	if res == resolutionEmpty {
		s.emptySlots--
	}
	if s.bloom != nil {
		s.bloom.Add(key)
	}

	if s.emptySlots == 0 {
		if err := s.grow(); err != nil {
			return fmt.Errorf("kvstore: set: %w", err)
		}
	}
	return nil
}

// Delete removes key. It returns ErrNotFound if key is not present.
func (s *Store) Delete(key []byte) error {
	index, res, err := s.findSlot(key)
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	if res != resolutionHit {
		return ErrNotFound
	}
	sl, err := s.readSlot(index)
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	if err := s.blobs.Delete(sl.kptr); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	if err := s.blobs.Delete(sl.vptr); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	if err := s.writeSlot(index, slot{kptr: 0, vptr: tombstoneVptr}); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	s.liveSlots--
	return nil
}

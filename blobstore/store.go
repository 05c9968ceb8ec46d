// Package blobstore implements the variable-length blob heap: a single
// append-capable, seekable file holding a sequence of length-prefixed
// records. Each record carries a deleted flag and a slack field so that a
// freed record's span can be reused by a later, smaller Add without
// shifting any other record on disk.
//
// A BlobStore has no notion of what its callers store beyond opaque byte
// strings, and no notion of the index layered on top of it by package
// kvstore — it is the leaf of the two-file engine.
package blobstore

import (
	"fmt"
	"io"
	"os"
)

// BlobStore owns one random-access file and the in-memory free list used
// to reuse reclaimed record spans on Add.
type BlobStore struct {
	file     *os.File
	freeList map[uint64]uint64 // header offset -> reclaimable span
}

// New opens bs over f. If f is empty, the store starts empty too. If f
// already holds records, the free list is rebuilt by scanning every header
// for tombstones, leaving out a tombstone at offset 0 — the free list itself
// is never persisted.
func New(f *os.File) (*BlobStore, error) {
	bs := &BlobStore{file: f, freeList: map[uint64]uint64{}}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open: %w", err)
	}
	if size == 0 {
		return bs, nil
	}
	if err := bs.rebuildFreeList(); err != nil {
		return nil, fmt.Errorf("blobstore: open: %w", err)
	}
	return bs, nil
}

// ReserveOffsetZero writes a permanent, empty tombstone record at the start
// of the file so that offset 0 is never returned by a later Add. It is a
// caller's (typically package kvstore's) responsibility to call this
// immediately after New on a file that was empty before New was called;
// BlobStore never writes this record on its own. The record is not added to
// the free list, and rebuildFreeList leaves any tombstone at offset 0 off it
// on a later reopen.
func (bs *BlobStore) ReserveOffsetZero() error {
	if _, err := bs.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blobstore: reserve offset zero: %w", err)
	}
	if _, err := bs.file.Write(encodeHeader(header{deleted: true})); err != nil {
		return fmt.Errorf("blobstore: reserve offset zero: %w", err)
	}
	if err := bs.file.Sync(); err != nil {
		return fmt.Errorf("blobstore: reserve offset zero: %w", err)
	}
	return nil
}

func (bs *BlobStore) rebuildFreeList() error {
	return bs.scan(func(offset uint64, h header, _ []byte) (bool, error) {
		// Offset 0 is excluded unconditionally, not just on the session
		// that calls ReserveOffsetZero: once something has tombstoned
		// offset 0, a later reopen has no way to tell "the permanent
		// reservation record" apart from "an ordinary record that
		// happened to live at offset 0 and got deleted". Reusing it on
		// a later Add would let a live key or value land back at offset
		// 0, which is bit-for-bit the same as the index's empty-slot
		// sentinel (0,0) and would make that key unreachable.
		if h.deleted && offset != 0 {
			bs.freeList[offset] = h.len + h.slack
		}
		return true, nil
	})
}

// Add persists payload and returns a stable offset for it. The free list is
// searched first-fit for a reclaimable span large enough to hold payload;
// on a hit the record is rewritten in place with any excess span kept as
// slack. On a miss the record is appended at end of file.
func (bs *BlobStore) Add(payload []byte) (uint64, error) {
	length := uint64(len(payload))

	offset, span, reused := uint64(0), uint64(0), false
	for p, s := range bs.freeList {
		if s >= length {
			offset, span, reused = p, s, true
			break
		}
	}

	if reused {
		if _, err := bs.file.Seek(int64(offset), io.SeekStart); err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
		if _, err := bs.file.Write(encodeHeader(header{len: length, slack: span - length, deleted: false})); err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
		if _, err := bs.file.Write(payload); err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
		delete(bs.freeList, offset)
	} else {
		end, err := bs.file.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
		offset = uint64(end)
		if _, err := bs.file.Write(encodeHeader(header{len: length, slack: 0, deleted: false})); err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
		if _, err := bs.file.Write(payload); err != nil {
			return 0, fmt.Errorf("blobstore: add: %w", err)
		}
	}

	if err := bs.file.Sync(); err != nil {
		return 0, fmt.Errorf("blobstore: add: %w", err)
	}
	return offset, nil
}

// Get returns the live payload stored at offset. It returns ErrDeleted if
// the record has been tombstoned. The behavior is undefined if offset does
// not name the start of a record header.
func (bs *BlobStore) Get(offset uint64) ([]byte, error) {
	hdrBuf := make([]byte, headerSize)
	if _, err := bs.file.ReadAt(hdrBuf, int64(offset)); err != nil {
		return nil, fmt.Errorf("blobstore: get: %w", err)
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if h.deleted {
		return nil, ErrDeleted
	}
	payload := make([]byte, h.len)
	if _, err := bs.file.ReadAt(payload, int64(offset)+headerSize); err != nil {
		return nil, fmt.Errorf("blobstore: get: %w", err)
	}
	return payload, nil
}

// Delete tombstones the record at offset and publishes its full on-disk
// span to the free list. The record's footprint on disk is unchanged.
func (bs *BlobStore) Delete(offset uint64) error {
	hdrBuf := make([]byte, headerSize)
	if _, err := bs.file.ReadAt(hdrBuf, int64(offset)); err != nil {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		return err
	}

	span := h.len + h.slack
	if _, err := bs.file.WriteAt(encodeHeader(header{len: span, slack: 0, deleted: true}), int64(offset)); err != nil {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	if err := bs.file.Sync(); err != nil {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	bs.freeList[offset] = span
	return nil
}

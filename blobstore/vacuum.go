package blobstore

import (
	"fmt"
	"io"
	"os"
)

// Vacuum rewrites the file compactly: every live record is copied, in file
// order, into a scratch temp file as a freshly appended record (no slack,
// no tombstones), and the scratch stream is then copied back over the live
// file, which is truncated to match. After Vacuum every offset issued by a
// prior Add is invalid. Vacuum clears the free list.
//
// Vacuum is a manual, whole-file operation with no notion of any offset a
// caller layered above it (such as package kvstore's offset-zero
// reservation) may be relying on — callers that need offset 0 to stay
// reserved across a vacuum must reserve it again afterward.
func (bs *BlobStore) Vacuum() error {
	scratch, err := os.CreateTemp("", "blobstore-vacuum-*")
	if err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	err = bs.scan(func(_ uint64, h header, payload []byte) (bool, error) {
		if h.deleted {
			return true, nil
		}
		if _, err := scratch.Write(encodeHeader(header{len: h.len, slack: 0, deleted: false})); err != nil {
			return false, fmt.Errorf("blobstore: vacuum: %w", err)
		}
		if _, err := scratch.Write(payload); err != nil {
			return false, fmt.Errorf("blobstore: vacuum: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	compactedLen, err := scratch.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if err := bs.file.Truncate(0); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if _, err := bs.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if _, err := io.Copy(bs.file, scratch); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if err := bs.file.Truncate(compactedLen); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}
	if err := bs.file.Sync(); err != nil {
		return fmt.Errorf("blobstore: vacuum: %w", err)
	}

	bs.freeList = map[uint64]uint64{}
	return nil
}

package blobstore

import (
	"fmt"
	"io"
	"iter"
)

// scan walks every record from offset 0, decoding its header and reading
// its full payload region (len bytes, then slack bytes skipped), calling fn
// with the header offset, decoded header, and the len-sized payload slice.
// fn returns false to stop early. scan reseeks to the start on every call,
// so it is not safe to interleave with a mutation.
func (bs *BlobStore) scan(fn func(offset uint64, h header, payload []byte) (bool, error)) error {
	if _, err := bs.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blobstore: scan: %w", err)
	}

	hdrBuf := make([]byte, headerSize)
	var offset uint64
	for {
		n, err := io.ReadFull(bs.file, hdrBuf)
		if err != nil {
			if err == io.EOF && n == 0 {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				return fmt.Errorf("blobstore: scan: %w: truncated header at offset %d", ErrMalformed, offset)
			}
			return fmt.Errorf("blobstore: scan: %w", err)
		}
		h, err := decodeHeader(hdrBuf)
		if err != nil {
			return err
		}
		payload := make([]byte, h.len)
		if _, err := io.ReadFull(bs.file, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fmt.Errorf("blobstore: scan: %w: truncated payload at offset %d", ErrMalformed, offset)
			}
			return fmt.Errorf("blobstore: scan: %w", err)
		}
		if h.slack > 0 {
			if _, err := bs.file.Seek(int64(h.slack), io.SeekCurrent); err != nil {
				return fmt.Errorf("blobstore: scan: %w", err)
			}
		}

		cont, err := fn(offset, h, payload)
		if err != nil || !cont {
			return err
		}
		offset += headerSize + h.len + h.slack
	}
}

// Headers iterates every record header, live and tombstoned, in file order.
func (bs *BlobStore) Headers() iter.Seq2[Header, error] {
	return func(yield func(Header, error) bool) {
		err := bs.scan(func(offset uint64, h header, _ []byte) (bool, error) {
			return yield(Header{offset, h.len, h.slack, h.deleted}, nil), nil
		})
		if err != nil {
			yield(Header{}, err)
		}
	}
}

// All iterates the payload bytes of every live record, in file order.
func (bs *BlobStore) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		err := bs.scan(func(_ uint64, h header, payload []byte) (bool, error) {
			if h.deleted {
				return true, nil
			}
			return yield(payload, nil), nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Items iterates the full (offset, len, slack, deleted, bytes) tuple for
// every record, live and tombstoned, in file order.
func (bs *BlobStore) Items() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		err := bs.scan(func(offset uint64, h header, payload []byte) (bool, error) {
			return yield(Item{offset, h.len, h.slack, h.deleted, payload}, nil), nil
		})
		if err != nil {
			yield(Item{}, err)
		}
	}
}

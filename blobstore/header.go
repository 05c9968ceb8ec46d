package blobstore

import (
	"encoding/binary"
	"fmt"
)

// Record header layout (little-endian, 17 bytes):
//
//	len      u64   live payload bytes following the header, or total
//	               reclaimable span when deleted
//	slack    u64   extra bytes to skip past len before the next header
//	deleted  u8    tombstone flag (0 or 1)
const headerSize = 8 + 8 + 1

type header struct {
	len     uint64
	slack   uint64
	deleted bool
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.len)
	binary.LittleEndian.PutUint64(buf[8:16], h.slack)
	if h.deleted {
		buf[16] = 1
	}
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) != headerSize {
		return header{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformed, len(buf))
	}
	h := header{
		len:   binary.LittleEndian.Uint64(buf[0:8]),
		slack: binary.LittleEndian.Uint64(buf[8:16]),
	}
	switch buf[16] {
	case 0:
		h.deleted = false
	case 1:
		h.deleted = true
	default:
		return header{}, fmt.Errorf("%w: deleted flag byte %d", ErrMalformed, buf[16])
	}
	return h, nil
}

// Header is the public view of a record header yielded by Headers.
type Header struct {
	Offset  uint64
	Len     uint64
	Slack   uint64
	Deleted bool
}

// Item is a full record tuple yielded by Items: offset, header fields, and
// the raw payload bytes (meaningful for live records; for a tombstone the
// bytes are whatever slack currently occupies the reclaimable span).
type Item struct {
	Offset  uint64
	Len     uint64
	Slack   uint64
	Deleted bool
	Bytes   []byte
}

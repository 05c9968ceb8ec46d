package blobstore

import "fmt"

// FsckReport summarizes a structural pass over a blob file.
type FsckReport struct {
	Records    uint64
	Live       uint64
	Tombstones uint64
	Bytes      uint64
	Issues     []string
}

// Fsck walks every record header and cross-checks it against the free list:
// every tombstoned offset other than 0 must appear in the free list with a
// matching span, and the free list must name no offset that isn't a
// tombstone. A tombstone at offset 0 is never reused (see rebuildFreeList
// and ReserveOffsetZero), so its absence from the free list is not an issue.
func (bs *BlobStore) Fsck() (FsckReport, error) {
	var report FsckReport
	seen := make(map[uint64]bool, len(bs.freeList))

	err := bs.scan(func(offset uint64, h header, _ []byte) (bool, error) {
		report.Records++
		report.Bytes += headerSize + h.len + h.slack
		if h.deleted {
			report.Tombstones++
			seen[offset] = true
			span, ok := bs.freeList[offset]
			if !ok {
				if offset == 0 {
					return true, nil
				}
				report.Issues = append(report.Issues, fmt.Sprintf("tombstone at offset %d missing from free list", offset))
			} else if span != h.len+h.slack {
				report.Issues = append(report.Issues, fmt.Sprintf("tombstone at offset %d: free list span %d, header span %d", offset, span, h.len+h.slack))
			}
		} else {
			report.Live++
		}
		return true, nil
	})
	if err != nil {
		return FsckReport{}, err
	}

	for offset := range bs.freeList {
		if !seen[offset] {
			report.Issues = append(report.Issues, fmt.Sprintf("free list names offset %d which is not a tombstoned record", offset))
		}
	}

	return report, nil
}

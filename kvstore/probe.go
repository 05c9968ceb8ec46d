package kvstore

import (
	"crypto/md5"
	"encoding/binary"
)

// slotSize is the on-disk width of one index slot: two little-endian u64s.
const slotSize = 16

// slot is one entry of the open-addressed table.
//
//	kptr, vptr == 0, 0          -> empty, never occupied
//	kptr == 0, vptr == tombstoneVptr -> occupied once, now deleted
//	otherwise                  -> live: kptr/vptr are blob-store offsets
type slot struct {
	kptr uint64
	vptr uint64
}

// tombstoneVptr marks a deleted slot. kptr stays 0 so a tombstone can never
// be confused with a live key whose blob offset happens to be 0 (offset 0
// is permanently reserved by ReserveOffsetZero for exactly this reason).
const tombstoneVptr = ^uint64(0)

func (s slot) empty() bool     { return s.kptr == 0 && s.vptr == 0 }
func (s slot) tombstone() bool { return s.kptr == 0 && s.vptr == tombstoneVptr }
func (s slot) live() bool      { return !s.empty() && !s.tombstone() }

// hashKey derives a 64-bit hash from the first 8 bytes of the key's MD5
// digest, read little-endian.
func hashKey(key []byte) uint64 {
	sum := md5.Sum(key)
	return binary.LittleEndian.Uint64(sum[:8])
}

type resolution int

const (
	resolutionEmpty resolution = iota
	resolutionTombstone
	resolutionHit
)

// probeSequence replays the CPython dict probe order for a table of size m:
// i0 = h mod m, perturb0 = h, and i(n+1) = (5*i(n) + perturb(n) + 1) mod m
// with perturb(n+1) = perturb(n) >> 5. It calls visit once per candidate
// index and stops when visit returns false.
func probeSequence(h uint64, m uint64, visit func(index uint64) bool) {
	perturb := h
	i := h % m
	for {
		if !visit(i) {
			return
		}
		i = (5*i + perturb + 1) % m
		perturb >>= 5
	}
}

// findSlot locates key's slot. If the key is present, it returns
// resolutionHit and the index of the live slot. Otherwise it returns the
// index the key should be inserted at: the first tombstone encountered
// along the probe sequence if one exists (resolutionTombstone), or
// otherwise the first genuinely empty slot (resolutionEmpty). Probing
// always continues past tombstones to confirm the key is truly absent,
// matching the reference probe sequence's requirement that presence
// lookups never stop early at a tombstone.
func (s *Store) findSlot(key []byte) (index uint64, res resolution, err error) {
	h := hashKey(key)

	var (
		haveTombstone bool
		tombstoneIdx  uint64
		outerErr      error
	)

	probeSequence(h, s.m, func(i uint64) bool {
		sl, rerr := s.readSlot(i)
		if rerr != nil {
			outerErr = rerr
			return false
		}

		switch {
		case sl.empty():
			if haveTombstone {
				index, res = tombstoneIdx, resolutionTombstone
			} else {
				index, res = i, resolutionEmpty
			}
			return false
		case sl.tombstone():
			if !haveTombstone {
				haveTombstone, tombstoneIdx = true, i
			}
			return true
		default: // live
			match, merr := s.keyMatches(sl.kptr, key)
			if merr != nil {
				outerErr = merr
				return false
			}
			if match {
				index, res = i, resolutionHit
				return false
			}
			return true
		}
	})

	if outerErr != nil {
		return 0, 0, outerErr
	}
	return index, res, nil
}

func (s *Store) keyMatches(kptr uint64, key []byte) (bool, error) {
	stored, err := s.blobs.Get(kptr)
	if err != nil {
		return false, err
	}
	if len(stored) != len(key) {
		return false, nil
	}
	for i := range stored {
		if stored[i] != key[i] {
			return false, nil
		}
	}
	return true, nil
}

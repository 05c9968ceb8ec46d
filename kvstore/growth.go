package kvstore

import (
	"encoding/binary"
	"fmt"
	"io"
)

// grow doubles the table. It appends a fresh, newM-sized scratch region at
// end of file (so the working file is temporarily oldM+newM slots long),
// rehashes every live slot from the lower (old) half into the upper
// (scratch) half using the same probe sequence as lookups, then copies the
// upper half down over the lower half and truncates. Tombstones are
// dropped in the rehash: they carry no live key, so the grown table starts
// with no tombstones at all, only empty and live slots.
func (s *Store) grow() error {
	oldM := s.m
	newM := oldM * 2

	if _, err := s.idx.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}
	if err := s.idx.Truncate(int64(oldM+newM) * slotSize); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}

	var liveMoved uint64
	for i := uint64(0); i < oldM; i++ {
		sl, err := s.readSlot(i)
		if err != nil {
			return fmt.Errorf("kvstore: grow: %w", err)
		}
		if !sl.live() {
			continue
		}

		key, err := s.blobs.Get(sl.kptr)
		if err != nil {
			return fmt.Errorf("kvstore: grow: %w", err)
		}
		h := hashKey(key)

		var placed bool
		probeSequence(h, newM, func(j uint64) bool {
			upper, err2 := s.readUpperSlot(oldM, j)
			if err2 != nil {
				err = err2
				return false
			}
			if !upper.empty() {
				return true
			}
			if err2 := s.writeUpperSlot(oldM, j, sl); err2 != nil {
				err = err2
				return false
			}
			placed = true
			return false
		})
		if err != nil {
			return fmt.Errorf("kvstore: grow: %w", err)
		}
		if !placed {
			return fmt.Errorf("kvstore: grow: no free slot found for rehashed key")
		}
		liveMoved++
	}

	upperRegion := make([]byte, newM*slotSize)
	if _, err := s.idx.ReadAt(upperRegion, int64(oldM)*slotSize); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}
	if _, err := s.idx.WriteAt(upperRegion, 0); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}
	if err := s.idx.Truncate(int64(newM) * slotSize); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}
	if err := s.idx.Sync(); err != nil {
		return fmt.Errorf("kvstore: grow: %w", err)
	}

	s.m = newM
	s.liveSlots = liveMoved
	s.emptySlots = newM - liveMoved
	return nil
}

func (s *Store) readUpperSlot(oldM, j uint64) (slot, error) {
	buf := make([]byte, slotSize)
	if _, err := s.idx.ReadAt(buf, int64(oldM+j)*slotSize); err != nil {
		return slot{}, fmt.Errorf("read upper slot %d: %w", j, err)
	}
	return slot{
		kptr: binary.LittleEndian.Uint64(buf[0:8]),
		vptr: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func (s *Store) writeUpperSlot(oldM, j uint64, sl slot) error {
	buf := make([]byte, slotSize)
	binary.LittleEndian.PutUint64(buf[0:8], sl.kptr)
	binary.LittleEndian.PutUint64(buf[8:16], sl.vptr)
	if _, err := s.idx.WriteAt(buf, int64(oldM+j)*slotSize); err != nil {
		return fmt.Errorf("write upper slot %d: %w", j, err)
	}
	return nil
}

package kvstore

import (
	"fmt"
	"iter"
)

// Pair is one key/value entry yielded by Items.
type Pair struct {
	Key   []byte
	Value []byte
}

// Items iterates every live entry in slot order. Slot order is not
// insertion order and carries no other meaning — this engine makes no
// ordering guarantee beyond "every live key appears exactly once".
func (s *Store) Items() iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		for i := uint64(0); i < s.m; i++ {
			sl, err := s.readSlot(i)
			if err != nil {
				yield(Pair{}, fmt.Errorf("kvstore: items: %w", err))
				return
			}
			if !sl.live() {
				continue
			}
			key, err := s.blobs.Get(sl.kptr)
			if err != nil {
				yield(Pair{}, fmt.Errorf("kvstore: items: %w", err))
				return
			}
			value, err := s.blobs.Get(sl.vptr)
			if err != nil {
				yield(Pair{}, fmt.Errorf("kvstore: items: %w", err))
				return
			}
			if !yield(Pair{Key: key, Value: value}, nil) {
				return
			}
		}
	}
}

// Keys iterates every live key, in the same order as Items.
func (s *Store) Keys() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for pair, err := range s.Items() {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(pair.Key, nil) {
				return
			}
		}
	}
}

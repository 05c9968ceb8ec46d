package kvstore

import "github.com/bits-and-blooms/bloom/v3"

// Option configures a Store at Open time. WithInitialTableSize only takes
// effect when Open is creating a brand new index file; an existing file's
// table size is always taken from its on-disk length. WithBloomFilter takes
// effect on every Open, and the filter is filled from the existing slots.
type Option func(*Store)

// WithBloomFilter enables a bloom filter sized for expectedKeys at the
// given false-positive rate, used to short-circuit Get/Contains misses
// without a probe sequence.
func WithBloomFilter(expectedKeys uint, falsePositiveRate float64) Option {
	return func(s *Store) {
		s.bloom = bloom.NewWithEstimates(expectedKeys, falsePositiveRate)
	}
}

// WithInitialTableSize sets the slot count a new index file is created
// with, rounded up to the next power of two at or above 8.
func WithInitialTableSize(m uint64) Option {
	return func(s *Store) {
		size := uint64(initialM)
		for size < m {
			size *= 2
		}
		s.m = size
	}
}

package blobstore

import "errors"

// ErrDeleted is returned by Get when the record at the given offset has
// been tombstoned.
var ErrDeleted = errors.New("blobstore: record deleted")

// ErrMalformed is returned when a record cannot be decoded: a header or
// payload cut short by end of file during a scan, or a deleted flag byte
// that is neither 0 nor 1.
var ErrMalformed = errors.New("blobstore: malformed record header")

package kvstore

import "errors"

// ErrNotFound is returned by Get and Delete when the key is not present.
var ErrNotFound = errors.New("kvstore: key not found")

// Package metadata is the local key/value table the client keeps in SQLite.
// The session store writes its encrypted record and key-derivation salt here.
package metadata

import (
	"context"
)

// Repository is a byte-valued key/value store.
//
// Get returns (nil, nil) for a missing key. SetIfAbsent reports whether the
// value was written (false when the key already existed).
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

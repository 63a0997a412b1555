// Package kv defines the durable key-value byte store the ledger persists into.
package kv

import "context"

// Store is a string-keyed store of opaque blobs.
type Store interface {
	// Get returns the value under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Invalidator is implemented by stores that cache reads. Invalidate drops the
// cached value of key so the next Get reaches the backing store.
type Invalidator interface {
	Invalidate(key string)
}

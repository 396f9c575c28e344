// Package storage defines the durable key/value layer that backs the L2 capture cache.
// This abstraction keeps the cache independent of a specific backend (local filesystem, Google Cloud
// Storage, Redis, or memory). Keys are flat cache keys; each backend maps them onto its own namespace.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("record not found")

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Provider defines the common interface for a durable record store.
type Provider interface {
	// Put writes (or overwrites) the record for key. Last writer wins.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every record owned by the provider.
	Clear(ctx context.Context) error
}

// ValidateKey rejects keys that could escape a backend namespace (path separators, dots, empty).
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// NoOpProvider stores nothing. It backs a memory-only cache.
type NoOpProvider struct{}

// Put for NoOpProvider does nothing and always returns nil.
func (NoOpProvider) Put(context.Context, string, []byte) error { return nil }

// Get always reports ErrNotFound.
func (NoOpProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

// Delete does nothing.
func (NoOpProvider) Delete(context.Context, string) error { return nil }

// Keys returns no keys.
func (NoOpProvider) Keys(context.Context) ([]string, error) { return nil, nil }

// Clear does nothing.
func (NoOpProvider) Clear(context.Context) error { return nil }

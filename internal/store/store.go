package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports an absent key. Never returned for connectivity
	// faults, so callers can tell "no data" from "store unreachable".
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable reports a transient connectivity failure. Callers may
	// retry; they must never treat it as an absent key.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the key-value persistence contract. Values are opaque blobs; the
// store knows nothing about their structure. Implementations must be safe for
// concurrent use on independent keys.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes the value. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that support a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

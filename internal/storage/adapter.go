// Package storage defines the backend-agnostic adapter contract and the
// factory that selects a backend at runtime. Backends register themselves in
// their package init, so importing a backend package is what makes it
// available — mirroring the database/sql driver convention.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel error conditions shared by all backends.
var (
	// ErrUnavailable wraps backend-unreachable and I/O failures.
	// Operations are never retried internally; callers decide.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrCorrupt wraps unreadable persisted records. An adapter must never
	// substitute an empty record for anything other than genuine absence.
	ErrCorrupt = errors.New("corrupt record")

	// ErrUnknownAdapter is returned by Open for an unregistered backend name.
	ErrUnknownAdapter = errors.New("unknown storage adapter")
)

// Adapter is the contract every storage backend satisfies.
//
// A scope is the unit of physical storage: all keys in a scope are read and
// written together, and a reader must never observe a half-written record.
// Values are JSON-serializable; adapters normalize them through JSON so a
// retrieved value is equal regardless of backend.
type Adapter interface {
	// Store upserts value under (scope, key). The record exists and is
	// durable when Store returns.
	Store(ctx context.Context, scopeID, key string, value any) error

	// Retrieve returns the stored value and true, or (nil, false) when the
	// key or scope does not exist. A missing key is not an error.
	Retrieve(ctx context.Context, scopeID, key string) (any, bool, error)

	// Delete removes a key. True if the key existed; idempotent.
	// Removing the last key keeps the (now empty) scope record.
	Delete(ctx context.Context, scopeID, key string) (bool, error)

	// ListKeys returns the sorted keys of a scope; empty for unknown scopes.
	ListKeys(ctx context.Context, scopeID string) ([]string, error)

	// ListScopes returns all known scopes matching the glob pattern
	// ("" matches all), sorted lexicographically.
	ListScopes(ctx context.Context, pattern string) ([]string, error)

	// DeleteScope removes a whole record. True if it existed.
	DeleteScope(ctx context.Context, scopeID string) (bool, error)

	// Close releases backend resources. Idempotent; no operations are valid
	// afterward.
	Close() error
}

// ConditionalStorer is an optional extension for backends with native
// atomic conditional writes. CompareAndSwap stores newValue under
// (scope, key) only if the current value equals oldValue; a nil oldValue
// requires the key to be absent. Returns false on a value mismatch.
//
// Backends without native support simply do not implement it; callers fall
// back to the advisory claim pattern.
type ConditionalStorer interface {
	CompareAndSwap(ctx context.Context, scopeID, key string, oldValue, newValue any) (bool, error)
}

// ---------------------------------------------------------------------------
// Value normalization
// ---------------------------------------------------------------------------

// Normalize round-trips v through JSON so that values compare and store
// identically across backends (maps become map[string]any, numbers float64).
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage.Normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("storage.Normalize: %w", err)
	}
	return out, nil
}

// ValuesEqual compares two values by their canonical JSON encoding.
// encoding/json sorts map keys, so the comparison is deterministic.
func ValuesEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Package memory implements an in-process storage backend. It is registered
// like any other adapter but is volatile: state lives in a mutex-guarded map
// and disappears with the process. Best suited for tests and throwaway runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

func init() {
	storage.Register("memory", func(storage.Options) (storage.Adapter, error) {
		return New(), nil
	})
}

type record struct {
	data      map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// Adapter is a volatile in-process storage backend, safe for concurrent use.
type Adapter struct {
	mu     sync.RWMutex
	scopes map[string]*record
}

// New returns an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{scopes: make(map[string]*record)}
}

// Store implements storage.Adapter. Values are normalized through JSON so
// retrieval behaves exactly like the persistent backends.
func (a *Adapter) Store(_ context.Context, scopeID, key string, value any) error {
	norm, err := storage.Normalize(value)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.scopes[scopeID]
	now := time.Now().UTC()
	if !ok {
		rec = &record{data: make(map[string]any), createdAt: now}
		a.scopes[scopeID] = rec
	}
	rec.data[key] = norm
	rec.updatedAt = now
	return nil
}

// Retrieve implements storage.Adapter. The value is re-normalized on the way
// out so callers cannot mutate stored state through shared references.
func (a *Adapter) Retrieve(_ context.Context, scopeID, key string) (any, bool, error) {
	a.mu.RLock()
	rec, ok := a.scopes[scopeID]
	if !ok {
		a.mu.RUnlock()
		return nil, false, nil
	}
	v, ok := rec.data[key]
	a.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	clone, err := storage.Normalize(v)
	if err != nil {
		return nil, false, err
	}
	return clone, true, nil
}

// Delete implements storage.Adapter.
func (a *Adapter) Delete(_ context.Context, scopeID, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.scopes[scopeID]
	if !ok {
		return false, nil
	}
	if _, ok := rec.data[key]; !ok {
		return false, nil
	}
	delete(rec.data, key)
	rec.updatedAt = time.Now().UTC()
	return true, nil
}

// ListKeys implements storage.Adapter.
func (a *Adapter) ListKeys(_ context.Context, scopeID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0)
	if rec, ok := a.scopes[scopeID]; ok {
		for k := range rec.data {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListScopes implements storage.Adapter.
func (a *Adapter) ListScopes(_ context.Context, pattern string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	scopes := make([]string, 0, len(a.scopes))
	for id := range a.scopes {
		if scope.Match(pattern, id) {
			scopes = append(scopes, id)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

// DeleteScope implements storage.Adapter.
func (a *Adapter) DeleteScope(_ context.Context, scopeID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.scopes[scopeID]; !ok {
		return false, nil
	}
	delete(a.scopes, scopeID)
	return true, nil
}

// Close implements storage.Adapter.
func (*Adapter) Close() error { return nil }

// CompareAndSwap implements storage.ConditionalStorer under the write lock,
// so it is genuinely atomic within the process.
func (a *Adapter) CompareAndSwap(_ context.Context, scopeID, key string, oldValue, newValue any) (bool, error) {
	normNew, err := storage.Normalize(newValue)
	if err != nil {
		return false, err
	}
	normOld, err := storage.Normalize(oldValue)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.scopes[scopeID]
	now := time.Now().UTC()
	if !ok {
		rec = &record{data: make(map[string]any), createdAt: now}
	}
	current, present := rec.data[key]
	if normOld == nil {
		if present {
			return false, nil
		}
	} else if !present || !storage.ValuesEqual(current, normOld) {
		return false, nil
	}
	rec.data[key] = normNew
	rec.updatedAt = now
	a.scopes[scopeID] = rec
	return true, nil
}

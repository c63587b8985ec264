package storage

import (
	"fmt"
	"sort"
	"sync"
)

// Options carries backend-specific settings from configuration.
type Options map[string]any

// String returns the named option as a string, or fallback when absent
// or of the wrong type.
func (o Options) String(name, fallback string) string {
	if v, ok := o[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Constructor builds an Adapter from its options.
type Constructor func(Options) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a backend available under name. It panics when name is
// already taken or fn is nil: both indicate a programming error at init time.
func Register(name string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if fn == nil {
		panic("storage: Register with nil constructor")
	}
	if _, dup := registry[name]; dup {
		panic("storage: Register called twice for adapter " + name)
	}
	registry[name] = fn
}

// Open constructs the named backend with the given options.
// Returns ErrUnknownAdapter for unregistered names.
func Open(name string, opts Options) (Adapter, error) {
	registryMu.RLock()
	fn, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage.Open %q (registered: %v): %w", name, Adapters(), ErrUnknownAdapter)
	}
	a, err := fn(opts)
	if err != nil {
		return nil, fmt.Errorf("storage.Open %q: %w", name, err)
	}
	return a, nil
}

// Adapters returns the sorted names of all registered backends.
func Adapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package file implements the reference storage backend: one JSON document
// per scope under a root directory. Every mutation is a whole-record
// read-modify-write persisted via write-to-temp-then-rename, so concurrent
// readers never observe a torn record.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

// DefaultPath is the root directory used when the "path" option is absent.
const DefaultPath = ".claude/session-state"

const fileExt = ".json"

func init() {
	storage.Register("file", func(opts storage.Options) (storage.Adapter, error) {
		return New(opts.String("path", DefaultPath))
	})
}

// record is the persisted per-scope document.
type record struct {
	Scope    string         `json:"scope"`
	Data     map[string]any `json:"data"`
	Metadata metadata       `json:"metadata"`
}

type metadata struct {
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Adapter stores one scope record per file under root.
type Adapter struct {
	root string
}

// New creates the directory at root if needed and returns the adapter.
func New(root string) (*Adapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("file.New: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("file.New: create root: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return &Adapter{root: abs}, nil
}

// Root returns the storage root directory.
func (a *Adapter) Root() string { return a.root }

func (a *Adapter) path(scopeID string) string {
	return filepath.Join(a.root, scope.Escape(scopeID)+fileExt)
}

// load reads the record for scopeID. found is false when the file does not
// exist; any other read or parse failure is an error, never an empty record.
func (a *Adapter) load(scopeID string) (*record, bool, error) {
	data, err := os.ReadFile(a.path(scopeID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file: read scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("file: scope %q: %w", scopeID, errors.Join(storage.ErrCorrupt, err))
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, true, nil
}

// save atomically replaces the record file: marshal, write to a temp file in
// the same directory, fsync, rename over the target.
func (a *Adapter) save(scopeID string, rec *record) error {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal scope %q: %w", scopeID, err)
	}

	tmp, err := os.CreateTemp(a.root, scope.Escape(scopeID)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file: temp for scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	if err := os.Rename(tmpName, a.path(scopeID)); err != nil {
		return fmt.Errorf("file: rename scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	return nil
}

// Store implements storage.Adapter.
func (a *Adapter) Store(_ context.Context, scopeID, key string, value any) error {
	norm, err := storage.Normalize(value)
	if err != nil {
		return err
	}

	rec, found, err := a.load(scopeID)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if !found {
		rec = &record{Scope: scopeID, Data: map[string]any{}, Metadata: metadata{CreatedAt: now}}
	}
	rec.Data[key] = norm
	rec.Metadata.UpdatedAt = now
	return a.save(scopeID, rec)
}

// Retrieve implements storage.Adapter.
func (a *Adapter) Retrieve(_ context.Context, scopeID, key string) (any, bool, error) {
	rec, found, err := a.load(scopeID)
	if err != nil || !found {
		return nil, false, err
	}
	v, ok := rec.Data[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Delete implements storage.Adapter. The record survives even when its last
// key is removed; only DeleteScope drops it.
func (a *Adapter) Delete(_ context.Context, scopeID, key string) (bool, error) {
	rec, found, err := a.load(scopeID)
	if err != nil || !found {
		return false, err
	}
	if _, ok := rec.Data[key]; !ok {
		return false, nil
	}
	delete(rec.Data, key)
	rec.Metadata.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := a.save(scopeID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// ListKeys implements storage.Adapter.
func (a *Adapter) ListKeys(_ context.Context, scopeID string) ([]string, error) {
	rec, found, err := a.load(scopeID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	if !found {
		return keys, nil
	}
	for k := range rec.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListScopes implements storage.Adapter. Filenames are reversed back to
// scope identifiers before the pattern filter is applied in memory.
func (a *Adapter) ListScopes(_ context.Context, pattern string) ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("file: list scopes: %w", errors.Join(storage.ErrUnavailable, err))
	}

	scopes := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := scope.Unescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			return nil, fmt.Errorf("file: scope filename %q: %w", name, errors.Join(storage.ErrCorrupt, err))
		}
		if scope.Match(pattern, id) {
			scopes = append(scopes, id)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

// DeleteScope implements storage.Adapter.
func (a *Adapter) DeleteScope(_ context.Context, scopeID string) (bool, error) {
	err := os.Remove(a.path(scopeID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("file: delete scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	return true, nil
}

// Close implements storage.Adapter. The adapter holds no open handles.
func (*Adapter) Close() error { return nil }

// Package sqlite implements the storage contract on a single SQLite database.
// Unlike the file backend it offers real per-operation atomicity and a native
// compare-and-set, which makes it the preferred choice when several processes
// on one machine share a coordination root.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver with database/sql

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

// DefaultPath is the database file used when the "path" option is absent.
const DefaultPath = ".claude/session-state.db"

func init() {
	storage.Register("sqlite", func(opts storage.Options) (storage.Adapter, error) {
		return Open(opts.String("path", DefaultPath))
	})
}

// Adapter stores one row per scope with the key→value mapping as a JSON column.
type Adapter struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
func Open(path string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", errors.Join(storage.ErrUnavailable, err))
	}
	a := &Adapter{db: db}
	if err := a.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open createSchema: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return a, nil
}

func (a *Adapter) createSchema() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS scopes (
		scope      TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error { return a.db.Close() }

// loadTx reads and decodes the data column for scopeID inside tx.
func loadTx(tx *sql.Tx, scopeID string) (map[string]any, bool, error) {
	var raw string
	err := tx.QueryRow(`SELECT data FROM scopes WHERE scope = ?`, scopeID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: read scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false, fmt.Errorf("sqlite: scope %q: %w", scopeID, errors.Join(storage.ErrCorrupt, err))
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, true, nil
}

// saveTx upserts the scope row inside tx, stamping created_at only on insert.
func saveTx(tx *sql.Tx, scopeID string, data map[string]any, existed bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sqlite: marshal scope %q: %w", scopeID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if existed {
		_, err = tx.Exec(`UPDATE scopes SET data = ?, updated_at = ? WHERE scope = ?`, string(raw), now, scopeID)
	} else {
		_, err = tx.Exec(
			`INSERT INTO scopes (scope, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			scopeID, string(raw), now, now,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite: write scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	return nil
}

// mutate runs fn against the decoded record inside a transaction.
// fn returns (persist, result, error); the record row is written back only
// when persist is true.
func (a *Adapter) mutate(ctx context.Context, scopeID string, fn func(data map[string]any, existed bool) (bool, bool, error)) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin: %w", errors.Join(storage.ErrUnavailable, err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	data, existed, err := loadTx(tx, scopeID)
	if err != nil {
		return false, err
	}
	if data == nil {
		data = map[string]any{}
	}
	persist, result, err := fn(data, existed)
	if err != nil {
		return false, err
	}
	if persist {
		if err := saveTx(tx, scopeID, data, existed); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return result, nil
}

// Store implements storage.Adapter.
func (a *Adapter) Store(ctx context.Context, scopeID, key string, value any) error {
	norm, err := storage.Normalize(value)
	if err != nil {
		return err
	}
	_, err = a.mutate(ctx, scopeID, func(data map[string]any, _ bool) (bool, bool, error) {
		data[key] = norm
		return true, true, nil
	})
	return err
}

// Retrieve implements storage.Adapter.
func (a *Adapter) Retrieve(ctx context.Context, scopeID, key string) (any, bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: begin: %w", errors.Join(storage.ErrUnavailable, err))
	}
	defer tx.Rollback() //nolint:errcheck // read-only transaction

	data, existed, err := loadTx(tx, scopeID)
	if err != nil || !existed {
		return nil, false, err
	}
	v, ok := data[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Delete implements storage.Adapter.
func (a *Adapter) Delete(ctx context.Context, scopeID, key string) (bool, error) {
	return a.mutate(ctx, scopeID, func(data map[string]any, existed bool) (bool, bool, error) {
		if !existed {
			return false, false, nil
		}
		if _, ok := data[key]; !ok {
			return false, false, nil
		}
		delete(data, key)
		return true, true, nil
	})
}

// ListKeys implements storage.Adapter.
func (a *Adapter) ListKeys(ctx context.Context, scopeID string) ([]string, error) {
	v, found, err := a.listKeys(ctx, scopeID)
	if err != nil || !found {
		return []string{}, err
	}
	return v, nil
}

func (a *Adapter) listKeys(ctx context.Context, scopeID string) ([]string, bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: begin: %w", errors.Join(storage.ErrUnavailable, err))
	}
	defer tx.Rollback() //nolint:errcheck // read-only transaction

	data, existed, err := loadTx(tx, scopeID)
	if err != nil || !existed {
		return nil, false, err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, true, nil
}

// ListScopes implements storage.Adapter. Rows come back ordered; the glob
// filter is applied in memory so pattern semantics match every backend.
func (a *Adapter) ListScopes(ctx context.Context, pattern string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT scope FROM scopes ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list scopes: %w", errors.Join(storage.ErrUnavailable, err))
	}
	defer rows.Close()

	scopes := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: list scopes: %w", err)
		}
		if scope.Match(pattern, s) {
			scopes = append(scopes, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list scopes: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return scopes, nil
}

// DeleteScope implements storage.Adapter.
func (a *Adapter) DeleteScope(ctx context.Context, scopeID string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM scopes WHERE scope = ?`, scopeID)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete scope %q: %w", scopeID, errors.Join(storage.ErrUnavailable, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompareAndSwap implements storage.ConditionalStorer. The read-check-write
// runs in a single transaction, so it really is atomic — unlike the advisory
// claim pattern layered on plain Store/Retrieve.
func (a *Adapter) CompareAndSwap(ctx context.Context, scopeID, key string, oldValue, newValue any) (bool, error) {
	normNew, err := storage.Normalize(newValue)
	if err != nil {
		return false, err
	}
	normOld, err := storage.Normalize(oldValue)
	if err != nil {
		return false, err
	}
	return a.mutate(ctx, scopeID, func(data map[string]any, _ bool) (bool, bool, error) {
		current, ok := data[key]
		if normOld == nil {
			if ok {
				return false, false, nil
			}
		} else if !ok || !storage.ValuesEqual(current, normOld) {
			return false, false, nil
		}
		data[key] = normNew
		return true, true, nil
	})
}

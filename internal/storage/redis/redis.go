// Package redis implements the storage contract over a shared Redis server,
// enabling cross-machine and team coordination. Each scope maps to a hash
// holding its key→value data plus a companion hash for metadata; hash writes
// are atomic per command, and CompareAndSwap uses an optimistic WATCH
// transaction.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

const (
	dataPrefix = "csc:"
	metaPrefix = "csc:meta:"
)

func init() {
	storage.Register("redis", func(opts storage.Options) (storage.Adapter, error) {
		url := opts.String("url", os.Getenv("REDIS_URL"))
		if url == "" {
			return nil, fmt.Errorf("redis: no url option and REDIS_URL unset: %w", storage.ErrUnavailable)
		}
		return New(context.Background(), url)
	})
}

// Adapter stores scope records in a shared Redis instance.
type Adapter struct {
	client *redis.Client
}

// New connects to the Redis server at url and verifies the connection.
func New(ctx context.Context, url string) (*Adapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.New: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return &Adapter{client: client}, nil
}

func dataKey(scopeID string) string { return dataPrefix + scopeID }
func metaKey(scopeID string) string { return metaPrefix + scopeID }

func unavailable(op string, err error) error {
	return fmt.Errorf("redis: %s: %w", op, errors.Join(storage.ErrUnavailable, err))
}

// Store implements storage.Adapter.
func (a *Adapter) Store(ctx context.Context, scopeID, key string, value any) error {
	norm, err := storage.Normalize(value)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(norm)
	if err != nil {
		return fmt.Errorf("redis: marshal %q/%q: %w", scopeID, key, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, dataKey(scopeID), key, string(raw))
		pipe.HSetNX(ctx, metaKey(scopeID), "created_at", now)
		pipe.HSet(ctx, metaKey(scopeID), "updated_at", now)
		return nil
	})
	if err != nil {
		return unavailable("store", err)
	}
	return nil
}

// Retrieve implements storage.Adapter.
func (a *Adapter) Retrieve(ctx context.Context, scopeID, key string) (any, bool, error) {
	raw, err := a.client.HGet(ctx, dataKey(scopeID), key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("retrieve", err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("redis: scope %q key %q: %w", scopeID, key, errors.Join(storage.ErrCorrupt, err))
	}
	return v, true, nil
}

// Delete implements storage.Adapter. The scope's hash may become empty (and
// thus invisible to Redis), but the metadata hash keeps the record alive for
// ListScopes until DeleteScope is called.
func (a *Adapter) Delete(ctx context.Context, scopeID, key string) (bool, error) {
	n, err := a.client.HDel(ctx, dataKey(scopeID), key).Result()
	if err != nil {
		return false, unavailable("delete", err)
	}
	if n == 0 {
		return false, nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := a.client.HSet(ctx, metaKey(scopeID), "updated_at", now).Err(); err != nil {
		return true, unavailable("delete", err)
	}
	return true, nil
}

// ListKeys implements storage.Adapter.
func (a *Adapter) ListKeys(ctx context.Context, scopeID string) ([]string, error) {
	keys, err := a.client.HKeys(ctx, dataKey(scopeID)).Result()
	if err != nil {
		return nil, unavailable("list keys", err)
	}
	if keys == nil {
		keys = []string{}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListScopes implements storage.Adapter. SCAN narrows candidates server-side
// (Redis glob syntax is compatible with ours); scope.Match stays the source
// of truth so semantics are identical across backends. Known scopes are the
// ones with a metadata hash, which survives an emptied data hash.
func (a *Adapter) ListScopes(ctx context.Context, pattern string) ([]string, error) {
	match := metaPrefix + "*"
	if pattern != "" {
		match = metaPrefix + pattern
	}

	scopes := make([]string, 0)
	iter := a.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), metaPrefix)
		if scope.Match(pattern, id) {
			scopes = append(scopes, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list scopes", err)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// DeleteScope implements storage.Adapter.
func (a *Adapter) DeleteScope(ctx context.Context, scopeID string) (bool, error) {
	n, err := a.client.Del(ctx, dataKey(scopeID), metaKey(scopeID)).Result()
	if err != nil {
		return false, unavailable("delete scope", err)
	}
	return n > 0, nil
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error { return a.client.Close() }

// CompareAndSwap implements storage.ConditionalStorer using an optimistic
// WATCH transaction: the swap aborts when another writer touches the scope
// hash between read and write, and the conflict is reported as a plain false.
func (a *Adapter) CompareAndSwap(ctx context.Context, scopeID, key string, oldValue, newValue any) (bool, error) {
	normNew, err := storage.Normalize(newValue)
	if err != nil {
		return false, err
	}
	normOld, err := storage.Normalize(oldValue)
	if err != nil {
		return false, err
	}
	rawNew, err := json.Marshal(normNew)
	if err != nil {
		return false, fmt.Errorf("redis: marshal %q/%q: %w", scopeID, key, err)
	}

	swapped := false
	txn := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, dataKey(scopeID), key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			if normOld != nil {
				return nil // key absent but a prior value was expected
			}
		case err != nil:
			return err
		default:
			if normOld == nil {
				return nil // key present but absence was expected
			}
			var current any
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("redis: scope %q key %q: %w", scopeID, key, errors.Join(storage.ErrCorrupt, err))
			}
			if !storage.ValuesEqual(current, normOld) {
				return nil
			}
		}

		now := time.Now().UTC().Format(time.RFC3339)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, dataKey(scopeID), key, string(rawNew))
			pipe.HSetNX(ctx, metaKey(scopeID), "created_at", now)
			pipe.HSet(ctx, metaKey(scopeID), "updated_at", now)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}

	err = a.client.Watch(ctx, txn, dataKey(scopeID))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil // lost the race; caller sees an ordinary mismatch
	}
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			return false, err
		}
		return false, unavailable("compare-and-swap", err)
	}
	return swapped, nil
}

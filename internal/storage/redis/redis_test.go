package redis_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage/redis"
)

// newAdapter connects to the server named by REDIS_URL and namespaces all
// scopes with a per-test prefix so runs do not interfere. Skipped when no
// server is configured.
func newAdapter(t *testing.T, c *qt.C) (*redis.Adapter, func(string) string) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	a, err := redis.New(context.Background(), url)
	c.Assert(err, qt.IsNil)

	prefix := fmt.Sprintf("test-%d", time.Now().UnixNano())
	ns := func(s string) string { return prefix + ":" + s }

	c.Cleanup(func() {
		ctx := context.Background()
		scopes, err := a.ListScopes(ctx, prefix+":*")
		c.Assert(err, qt.IsNil)
		for _, s := range scopes {
			_, err := a.DeleteScope(ctx, s)
			c.Assert(err, qt.IsNil)
		}
		c.Assert(a.Close(), qt.IsNil)
	})
	return a, ns
}

func TestStoreRetrieve_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a, ns := newAdapter(t, c)

	c.Assert(a.Store(ctx, ns("session:claude_1"), "status", "working"), qt.IsNil)
	v, found, err := a.Retrieve(ctx, ns("session:claude_1"), "status")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(v, qt.Equals, "working")

	c.Assert(a.Store(ctx, ns("s"), "nested", map[string]any{"n": 7, "ok": true}), qt.IsNil)
	v, found, err = a.Retrieve(ctx, ns("s"), "nested")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(v, qt.DeepEquals, map[string]any{"n": float64(7), "ok": true})

	_, found, err = a.Retrieve(ctx, ns("s"), "nope")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsFalse)
}

func TestDeleteAndScopes(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a, ns := newAdapter(t, c)

	c.Assert(a.Store(ctx, ns("session:claude_1"), "k", "v"), qt.IsNil)
	c.Assert(a.Store(ctx, ns("session:claude_2"), "k", "v"), qt.IsNil)
	c.Assert(a.Store(ctx, ns("instances"), "registry", map[string]any{}), qt.IsNil)

	scopes, err := a.ListScopes(ctx, ns("session:*"))
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.DeepEquals, []string{ns("session:claude_1"), ns("session:claude_2")})

	deleted, err := a.Delete(ctx, ns("session:claude_1"), "k")
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsTrue)
	deleted, err = a.Delete(ctx, ns("session:claude_1"), "k")
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsFalse)

	// The metadata hash keeps the emptied scope listable.
	scopes, err = a.ListScopes(ctx, ns("session:*"))
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.HasLen, 2)

	deleted, err = a.DeleteScope(ctx, ns("session:claude_1"))
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsTrue)
	scopes, err = a.ListScopes(ctx, ns("session:*"))
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.DeepEquals, []string{ns("session:claude_2")})
}

func TestCompareAndSwap(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a, ns := newAdapter(t, c)

	var _ storage.ConditionalStorer = (*redis.Adapter)(nil)

	ok, err := a.CompareAndSwap(ctx, ns("s"), "k", nil, "first")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	ok, err = a.CompareAndSwap(ctx, ns("s"), "k", nil, "second")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	ok, err = a.CompareAndSwap(ctx, ns("s"), "k", "first", "third")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	v, _, err := a.Retrieve(ctx, ns("s"), "k")
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, "third")
}

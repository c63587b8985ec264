package memory_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage/memory"
)

func TestStoreRetrieve_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a := memory.New()

	c.Assert(a.Store(ctx, "session:claude_1", "status", "working"), qt.IsNil)
	v, found, err := a.Retrieve(ctx, "session:claude_1", "status")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(v, qt.Equals, "working")

	// Same normalization as the persistent backends.
	c.Assert(a.Store(ctx, "s", "n", 42), qt.IsNil)
	v, _, err = a.Retrieve(ctx, "s", "n")
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, float64(42))
}

func TestRetrieve_ReturnsDefensiveCopy(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a := memory.New()

	c.Assert(a.Store(ctx, "s", "k", map[string]any{"inner": "original"}), qt.IsNil)

	v1, _, err := a.Retrieve(ctx, "s", "k")
	c.Assert(err, qt.IsNil)
	v1.(map[string]any)["inner"] = "mutated"

	v2, _, err := a.Retrieve(ctx, "s", "k")
	c.Assert(err, qt.IsNil)
	c.Assert(v2, qt.DeepEquals, map[string]any{"inner": "original"})
}

func TestDeleteAndScopes(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a := memory.New()

	c.Assert(a.Store(ctx, "laptop:org/repo:instances", "registry", map[string]any{"claude_1": "available"}), qt.IsNil)
	c.Assert(a.Store(ctx, "laptop:org/repo:session:claude_1", "status", "working"), qt.IsNil)

	scopes, err := a.ListScopes(ctx, "laptop:org/repo:session:*")
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.DeepEquals, []string{"laptop:org/repo:session:claude_1"})

	deleted, err := a.Delete(ctx, "laptop:org/repo:session:claude_1", "status")
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsTrue)
	deleted, err = a.Delete(ctx, "laptop:org/repo:session:claude_1", "status")
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsFalse)

	// Emptied scope still listed until DeleteScope.
	scopes, err = a.ListScopes(ctx, "laptop:org/repo:session:*")
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.HasLen, 1)

	deleted, err = a.DeleteScope(ctx, "laptop:org/repo:session:claude_1")
	c.Assert(err, qt.IsNil)
	c.Assert(deleted, qt.IsTrue)
	scopes, err = a.ListScopes(ctx, "laptop:org/repo:session:*")
	c.Assert(err, qt.IsNil)
	c.Assert(scopes, qt.HasLen, 0)
}

func TestCompareAndSwap(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	var _ storage.ConditionalStorer = (*memory.Adapter)(nil)

	c.Run("nil old requires absence", func(c *qt.C) {
		a := memory.New()
		ok, err := a.CompareAndSwap(ctx, "s", "k", nil, "first")
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)

		// Second writer loses: the key now exists.
		ok, err = a.CompareAndSwap(ctx, "s", "k", nil, "second")
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)

		v, _, err := a.Retrieve(ctx, "s", "k")
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, "first")
	})

	c.Run("swap on matching value", func(c *qt.C) {
		a := memory.New()
		c.Assert(a.Store(ctx, "s", "k", "old"), qt.IsNil)
		ok, err := a.CompareAndSwap(ctx, "s", "k", "old", "new")
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
		v, _, err := a.Retrieve(ctx, "s", "k")
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, "new")
	})

	c.Run("mismatch leaves value untouched", func(c *qt.C) {
		a := memory.New()
		c.Assert(a.Store(ctx, "s", "k", "current"), qt.IsNil)
		ok, err := a.CompareAndSwap(ctx, "s", "k", "stale", "new")
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
		v, _, err := a.Retrieve(ctx, "s", "k")
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, "current")
	})

	c.Run("structural equality across number types", func(c *qt.C) {
		a := memory.New()
		c.Assert(a.Store(ctx, "s", "k", map[string]any{"n": 1}), qt.IsNil)
		ok, err := a.CompareAndSwap(ctx, "s", "k", map[string]any{"n": float64(1)}, "new")
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
	})
}

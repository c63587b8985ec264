package storage_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

// nullAdapter is a do-nothing backend used to exercise the registry.
type nullAdapter struct{}

func (nullAdapter) Store(context.Context, string, string, any) error        { return nil }
func (nullAdapter) Retrieve(context.Context, string, string) (any, bool, error) {
	return nil, false, nil
}
func (nullAdapter) Delete(context.Context, string, string) (bool, error) { return false, nil }
func (nullAdapter) ListKeys(context.Context, string) ([]string, error)   { return nil, nil }
func (nullAdapter) ListScopes(context.Context, string) ([]string, error) { return nil, nil }
func (nullAdapter) DeleteScope(context.Context, string) (bool, error)    { return false, nil }
func (nullAdapter) Close() error                                         { return nil }

func TestOpen_HappyPath(t *testing.T) {
	c := qt.New(t)

	var gotOpts storage.Options
	storage.Register("null", func(opts storage.Options) (storage.Adapter, error) {
		gotOpts = opts
		return nullAdapter{}, nil
	})

	a, err := storage.Open("null", storage.Options{"path": "/tmp/x"})
	c.Assert(err, qt.IsNil)
	c.Assert(a, qt.Not(qt.IsNil))
	c.Assert(gotOpts.String("path", ""), qt.Equals, "/tmp/x")
	c.Assert(storage.Adapters(), qt.Contains, "null")
}

func TestOpen_UnknownAdapter(t *testing.T) {
	c := qt.New(t)

	_, err := storage.Open("no-such-backend", nil)
	c.Assert(err, qt.ErrorIs, storage.ErrUnknownAdapter)
	c.Assert(err, qt.ErrorMatches, `storage.Open "no-such-backend".*`)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	c := qt.New(t)

	storage.Register("dup", func(storage.Options) (storage.Adapter, error) { return nullAdapter{}, nil })
	c.Assert(func() {
		storage.Register("dup", func(storage.Options) (storage.Adapter, error) { return nullAdapter{}, nil })
	}, qt.PanicMatches, `storage: Register called twice.*`)
	c.Assert(func() {
		storage.Register("nil-ctor", nil)
	}, qt.PanicMatches, `storage: Register with nil constructor`)
}

func TestOptionsString(t *testing.T) {
	c := qt.New(t)

	opts := storage.Options{"path": "/data", "port": 6379, "empty": ""}
	c.Assert(opts.String("path", "fallback"), qt.Equals, "/data")
	c.Assert(opts.String("port", "fallback"), qt.Equals, "fallback")  // wrong type
	c.Assert(opts.String("empty", "fallback"), qt.Equals, "fallback") // empty string
	c.Assert(opts.String("missing", "fallback"), qt.Equals, "fallback")
}

func TestNormalize(t *testing.T) {
	c := qt.New(t)

	c.Run("numbers become float64", func(c *qt.C) {
		v, err := storage.Normalize(15)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, float64(15))
	})

	c.Run("structs become maps", func(c *qt.C) {
		v, err := storage.Normalize(struct {
			Task string `json:"task"`
			Done bool   `json:"done"`
		}{Task: "review", Done: true})
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.DeepEquals, map[string]any{"task": "review", "done": true})
	})

	c.Run("nil stays nil", func(c *qt.C) {
		v, err := storage.Normalize(nil)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.IsNil)
	})

	c.Run("unserializable value errors", func(c *qt.C) {
		_, err := storage.Normalize(make(chan int))
		c.Assert(err, qt.Not(qt.IsNil))
	})
}

func TestValuesEqual(t *testing.T) {
	c := qt.New(t)

	c.Assert(storage.ValuesEqual(
		map[string]any{"a": 1, "b": "x"},
		map[string]any{"b": "x", "a": float64(1)},
	), qt.IsTrue)
	c.Assert(storage.ValuesEqual("a", "b"), qt.IsFalse)
	c.Assert(storage.ValuesEqual(nil, nil), qt.IsTrue)
	c.Assert(storage.ValuesEqual([]any{1, 2}, []any{2, 1}), qt.IsFalse)
}

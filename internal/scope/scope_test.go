package scope_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
)

func TestJoinSplit_HappyPath(t *testing.T) {
	c := qt.New(t)

	s := scope.Join("laptop", "BANCS-Norway/repo", "session", "claude_1")
	c.Assert(s, qt.Equals, "laptop:BANCS-Norway/repo:session:claude_1")
	c.Assert(scope.Split(s), qt.DeepEquals, []string{"laptop", "BANCS-Norway/repo", "session", "claude_1"})
}

func TestEscape_RoundTrip(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name  string
		scope string
	}{
		{"standard scope", "laptop:BANCS-Norway/repo:session:claude_1"},
		{"underscores in segments", "my_machine:org/my_repo:instances"},
		{"hyphens in segments", "lap-top:or-g/re-po:lock"},
		{"escape-sequence lookalikes", "a_xb:c_sd:e__f"},
		{"single segment", "instances"},
		{"empty segments", "a::b"},
		{"trailing underscore", "claude_"},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			escaped := scope.Escape(tt.scope)
			// Flat-namespace safety: no delimiter characters survive.
			c.Assert(escaped, qt.Not(qt.Contains), ":")
			c.Assert(escaped, qt.Not(qt.Contains), "/")

			back, err := scope.Unescape(escaped)
			c.Assert(err, qt.IsNil)
			c.Assert(back, qt.Equals, tt.scope)
		})
	}
}

func TestEscape_DistinctScopesNeverCollide(t *testing.T) {
	c := qt.New(t)

	// These were indistinguishable under a naive "replace both with __" scheme.
	a := scope.Escape("laptop:org/repo")
	b := scope.Escape("laptop:org:repo")
	d := scope.Escape("laptop_org_repo")
	c.Assert(a, qt.Not(qt.Equals), b)
	c.Assert(a, qt.Not(qt.Equals), d)
	c.Assert(b, qt.Not(qt.Equals), d)
}

func TestUnescape_InvalidInput(t *testing.T) {
	c := qt.New(t)

	for _, bad := range []string{"trailing_", "unknown_qpair"} {
		c.Run(bad, func(c *qt.C) {
			_, err := scope.Unescape(bad)
			c.Assert(err, qt.ErrorIs, scope.ErrBadEscape)
		})
	}
}

func TestMatch_HappyPath(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name    string
		pattern string
		scope   string
		want    bool
	}{
		{"empty pattern matches all", "", "anything:at:all", true},
		{"exact match", "instances", "instances", true},
		{"prefix star", "session:*", "session:claude_1", true},
		{"prefix star rejects others", "session:*", "issue:15", false},
		{"star crosses delimiters", "laptop:*", "laptop:org/repo:session:claude_1", true},
		{"star crosses slashes", "*:org/*:instances", "laptop:org/repo:instances", true},
		{"middle star", "laptop:*:instances", "laptop:org/repo:instances", true},
		{"question mark", "claude_?", "claude_1", true},
		{"question mark single char only", "claude_?", "claude_12", false},
		{"no partial match", "session", "session:claude_1", false},
		{"regexp metacharacters are literal", "a.b", "axb", false},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			c.Assert(scope.Match(tt.pattern, tt.scope), qt.Equals, tt.want)
		})
	}
}

func TestFilter_HappyPath(t *testing.T) {
	c := qt.New(t)

	scopes := []string{"instances", "issue:15", "session:claude_1", "session:claude_2"}
	c.Assert(scope.Filter("session:*", scopes), qt.DeepEquals, []string{"session:claude_1", "session:claude_2"})
	c.Assert(scope.Filter("", scopes), qt.DeepEquals, scopes)
	c.Assert(scope.Filter("nope:*", scopes), qt.HasLen, 0)
}

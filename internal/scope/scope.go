// Package scope defines the scope address scheme: how scope identifiers are
// composed from segments, escaped into flat backend namespaces (filenames,
// key prefixes), and matched against glob patterns.
package scope

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// Delimiter separates scope segments, e.g. "laptop:BANCS-Norway/repo:session:claude_1".
const Delimiter = ":"

// ErrBadEscape is returned when an escaped form cannot be decoded back to a scope.
var ErrBadEscape = errors.New("scope: invalid escape sequence")

// Join composes a scope identifier from ordered segments.
func Join(segments ...string) string {
	return strings.Join(segments, Delimiter)
}

// Split breaks a scope identifier into its segments.
func Split(s string) []string {
	return strings.Split(s, Delimiter)
}

// ---------------------------------------------------------------------------
// Flat-namespace escaping
// ---------------------------------------------------------------------------
//
// Backends with flat namespaces (one file per scope) need scope identifiers
// turned into safe names. The mapping must be total and reversible: every
// delimiter character gets a distinct substitute, and literal underscores are
// self-escaped so decoding is unambiguous.
//
//	"_" → "_x"    ":" → "__"    "/" → "_s"
//
// Example: "laptop:org/repo:session:claude_1" → "laptop__org_srepo__session__claude_x1".

var escaper = strings.NewReplacer("_", "_x", ":", "__", "/", "_s")

// Escape converts a scope identifier to a flat-namespace-safe name.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape recovers the original scope identifier from an escaped name.
// Returns ErrBadEscape if the input is not a valid Escape output.
func Unescape(name string) (string, error) {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch != '_' {
			b.WriteByte(ch)
			continue
		}
		if i+1 >= len(name) {
			return "", ErrBadEscape
		}
		i++
		switch name[i] {
		case 'x':
			b.WriteByte('_')
		case '_':
			b.WriteByte(':')
		case 's':
			b.WriteByte('/')
		default:
			return "", ErrBadEscape
		}
	}
	return b.String(), nil
}

// ---------------------------------------------------------------------------
// Glob matching
// ---------------------------------------------------------------------------

var (
	matcherMu    sync.Mutex
	matcherCache = map[string]*regexp.Regexp{}
)

// compile translates a glob pattern into an anchored regexp.
// "*" matches any run of characters (including delimiters), "?" any single one.
func compile(pattern string) (*regexp.Regexp, error) {
	matcherMu.Lock()
	defer matcherMu.Unlock()
	if re, ok := matcherCache[pattern]; ok {
		return re, nil
	}
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*`, `.*`)
	expr = strings.ReplaceAll(expr, `\?`, `.`)
	re, err := regexp.Compile(`\A` + expr + `\z`)
	if err != nil {
		return nil, err
	}
	matcherCache[pattern] = re
	return re, nil
}

// Match reports whether the scope identifier matches the glob pattern.
// An empty pattern matches everything.
func Match(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// Filter returns the subset of scopes matching pattern, preserving order.
func Filter(pattern string, scopes []string) []string {
	if pattern == "" {
		return scopes
	}
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if Match(pattern, s) {
			out = append(out, s)
		}
	}
	return out
}

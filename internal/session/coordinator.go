// Package session implements the sign-on/sign-off state machine that binds a
// caller to a claimable instance identity, auto-prefixes all data operations
// with the machine:project scope prefix, and provides the advisory claim/lock
// helper built from plain store/retrieve/delete.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

// Instance registry conventions: a distinguished scope per machine:project
// holding one "registry" key that maps instance id → status.
const (
	registryScope = "instances"
	registryKey   = "registry"

	// StatusAvailable marks an instance free to claim.
	StatusAvailable = "available"
	// StatusTaken marks an instance claimed by a session.
	StatusTaken = "taken"
)

var (
	// ErrNotSignedOn is returned by data operations in the UNBOUND state.
	ErrNotSignedOn = errors.New("not signed on: call sign_on first")

	// ErrNoInstanceAvailable is returned by sign-on when every instance in
	// the registry is taken.
	ErrNoInstanceAvailable = errors.New("no instance available")
)

// Context is the identity bound by sign-on. All data operations prepend
// ScopePrefix to caller-supplied scopes.
type Context struct {
	Machine     string `json:"machine"`
	Project     string `json:"project"`
	InstanceID  string `json:"instance_id"`
	ScopePrefix string `json:"scope_prefix"`
}

// Coordinator owns the UNBOUND→BOUND→UNBOUND state machine for one caller.
// Each caller holds its own Coordinator; there is no process-global session
// state, so multiple coordinators can share one adapter (and one backend)
// without interfering.
type Coordinator struct {
	adapter   storage.Adapter
	machine   string
	project   string
	instances []string // registry seed for first sign-on

	mu      sync.Mutex
	current *Context
}

// New creates an UNBOUND coordinator for the given machine/project identity.
// instances seeds the registry the first time sign-on finds no registry
// record for this machine:project.
func New(adapter storage.Adapter, machine, project string, instances []string) *Coordinator {
	return &Coordinator{
		adapter:   adapter,
		machine:   machine,
		project:   project,
		instances: instances,
	}
}

// Adapter returns the underlying storage adapter.
func (c *Coordinator) Adapter() storage.Adapter { return c.adapter }

// Prefix returns the machine:project scope prefix.
func (c *Coordinator) Prefix() string { return scope.Join(c.machine, c.project) }

// Current returns a copy of the bound context, or false when UNBOUND.
func (c *Coordinator) Current() (Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Context{}, false
	}
	return *c.current, true
}

func (c *Coordinator) registryScopeID() string {
	return scope.Join(c.Prefix(), registryScope)
}

// Registry returns the instance registry for this machine:project. When no
// registry record exists yet, the configured seed is returned (all
// available) without being written.
func (c *Coordinator) Registry(ctx context.Context) (map[string]string, error) {
	reg, found, err := c.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		reg = c.seedRegistry()
	}
	return reg, nil
}

func (c *Coordinator) seedRegistry() map[string]string {
	reg := make(map[string]string, len(c.instances))
	for _, id := range c.instances {
		reg[id] = StatusAvailable
	}
	return reg
}

func (c *Coordinator) loadRegistry(ctx context.Context) (map[string]string, bool, error) {
	raw, found, err := c.adapter.Retrieve(ctx, c.registryScopeID(), registryKey)
	if err != nil {
		return nil, false, fmt.Errorf("session: load registry: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("session: registry record is not a mapping: %w", storage.ErrCorrupt)
	}
	reg := make(map[string]string, len(entries))
	for id, status := range entries {
		s, ok := status.(string)
		if !ok {
			return nil, false, fmt.Errorf("session: registry status for %q is not a string: %w", id, storage.ErrCorrupt)
		}
		reg[id] = s
	}
	return reg, true, nil
}

func (c *Coordinator) storeRegistry(ctx context.Context, reg map[string]string) error {
	if err := c.adapter.Store(ctx, c.registryScopeID(), registryKey, reg); err != nil {
		return fmt.Errorf("session: store registry: %w", err)
	}
	return nil
}

// firstAvailable picks the lexicographically first available instance so that
// "first available" is reproducible regardless of map iteration order.
func firstAvailable(reg map[string]string) (string, bool) {
	ids := make([]string, 0, len(reg))
	for id := range reg {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if reg[id] == StatusAvailable {
			return id, true
		}
	}
	return "", false
}

// SignOn claims an instance and transitions to BOUND. With an empty
// instanceID the lexicographically first available instance is claimed;
// ErrNoInstanceAvailable when none is free. An explicit instanceID is always
// honored, even for ids not yet present in the registry.
//
// Calling SignOn while already BOUND releases the previously claimed
// instance before claiming the new one, so a rebind never leaks a taken
// registry entry.
func (c *Coordinator) SignOn(ctx context.Context, instanceID string) (*Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, found, err := c.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		reg = c.seedRegistry()
	}

	if c.current != nil {
		reg[c.current.InstanceID] = StatusAvailable
	}

	if instanceID == "" {
		id, ok := firstAvailable(reg)
		if !ok {
			return nil, fmt.Errorf("session: sign on %s: %w", c.Prefix(), ErrNoInstanceAvailable)
		}
		instanceID = id
	}
	reg[instanceID] = StatusTaken

	if err := c.storeRegistry(ctx, reg); err != nil {
		return nil, err
	}

	c.current = &Context{
		Machine:     c.machine,
		Project:     c.project,
		InstanceID:  instanceID,
		ScopePrefix: c.Prefix(),
	}
	bound := *c.current
	return &bound, nil
}

// SignOff releases the claimed instance, clears the bound context, and
// returns the context that was just cleared. Already UNBOUND is a no-op
// success returning nil.
func (c *Coordinator) SignOff(ctx context.Context) (*Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, nil
	}

	reg, found, err := c.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		reg = c.seedRegistry()
	}
	reg[c.current.InstanceID] = StatusAvailable
	if err := c.storeRegistry(ctx, reg); err != nil {
		return nil, err
	}

	prev := *c.current
	c.current = nil
	return &prev, nil
}

// bound returns the active context or ErrNotSignedOn.
func (c *Coordinator) bound() (Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Context{}, ErrNotSignedOn
	}
	return *c.current, nil
}

// fullScope prepends the session prefix to a caller-supplied scope.
func fullScope(prefix, scopeID string) string {
	return scope.Join(prefix, scopeID)
}

// Store writes value under (scope, key) within the session prefix.
func (c *Coordinator) Store(ctx context.Context, scopeID, key string, value any) error {
	cur, err := c.bound()
	if err != nil {
		return err
	}
	return c.adapter.Store(ctx, fullScope(cur.ScopePrefix, scopeID), key, value)
}

// Retrieve reads (scope, key) within the session prefix.
func (c *Coordinator) Retrieve(ctx context.Context, scopeID, key string) (any, bool, error) {
	cur, err := c.bound()
	if err != nil {
		return nil, false, err
	}
	return c.adapter.Retrieve(ctx, fullScope(cur.ScopePrefix, scopeID), key)
}

// Delete removes (scope, key) within the session prefix.
func (c *Coordinator) Delete(ctx context.Context, scopeID, key string) (bool, error) {
	cur, err := c.bound()
	if err != nil {
		return false, err
	}
	return c.adapter.Delete(ctx, fullScope(cur.ScopePrefix, scopeID), key)
}

// ListKeys lists the keys of a scope within the session prefix.
func (c *Coordinator) ListKeys(ctx context.Context, scopeID string) ([]string, error) {
	cur, err := c.bound()
	if err != nil {
		return nil, err
	}
	return c.adapter.ListKeys(ctx, fullScope(cur.ScopePrefix, scopeID))
}

// ListScopes lists scopes within the session prefix, with the prefix
// stripped from the results. An empty pattern matches every session scope.
func (c *Coordinator) ListScopes(ctx context.Context, pattern string) ([]string, error) {
	cur, err := c.bound()
	if err != nil {
		return nil, err
	}
	full := cur.ScopePrefix + scope.Delimiter + "*"
	if pattern != "" {
		full = fullScope(cur.ScopePrefix, pattern)
	}
	scopes, err := c.adapter.ListScopes(ctx, full)
	if err != nil {
		return nil, err
	}
	strip := cur.ScopePrefix + scope.Delimiter
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, strings.TrimPrefix(s, strip))
	}
	return out, nil
}

// DeleteScope removes a whole scope within the session prefix.
func (c *Coordinator) DeleteScope(ctx context.Context, scopeID string) (bool, error) {
	cur, err := c.bound()
	if err != nil {
		return false, err
	}
	return c.adapter.DeleteScope(ctx, fullScope(cur.ScopePrefix, scopeID))
}

// PeekSession reads another session's state scope ("session:<instanceID>")
// directly through the adapter. It is intentionally usable while UNBOUND —
// reading what others work on must not require claiming an instance.
func (c *Coordinator) PeekSession(ctx context.Context, instanceID string) (map[string]any, error) {
	scopeID := scope.Join(c.Prefix(), "session", instanceID)
	keys, err := c.adapter.ListKeys(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	state := make(map[string]any, len(keys))
	for _, k := range keys {
		v, found, err := c.adapter.Retrieve(ctx, scopeID, k)
		if err != nil {
			return nil, err
		}
		if found {
			state[k] = v
		}
	}
	return state, nil
}

// ---------------------------------------------------------------------------
// Claim/lock pattern
// ---------------------------------------------------------------------------

// Lock key convention inside a resource scope.
const (
	lockHolderKey = "locked_by"
	lockTimeKey   = "locked_at"
)

// LockHeldError reports that a resource is claimed by another identity.
type LockHeldError struct {
	Resource string
	Holder   string
	Since    string // RFC3339 claim timestamp, "" when unknown
}

func (e *LockHeldError) Error() string {
	if e.Since == "" {
		return fmt.Sprintf("resource %q is locked by %q", e.Resource, e.Holder)
	}
	return fmt.Sprintf("resource %q is locked by %q since %s", e.Resource, e.Holder, e.Since)
}

// ErrLockLost is returned when the verification read finds the claim
// overwritten by another identity.
var ErrLockLost = errors.New("lock lost to concurrent claimant")

// Lock describes a successfully placed claim.
type Lock struct {
	Resource   string `json:"resource"`
	Holder     string `json:"holder"`
	AcquiredAt string `json:"acquired_at"`
}

// AcquireLock places an advisory claim on a resource scope using the
// locked_by/locked_at convention. The claim is cooperative: two callers can
// interleave between the read and the write, and last-write-wins. A
// verifyAfter > 0 re-reads the holder after that delay and reports a lost
// race with ErrLockLost — a best-effort detector, not a guarantee.
func (c *Coordinator) AcquireLock(ctx context.Context, resource string, verifyAfter time.Duration) (*Lock, error) {
	cur, err := c.bound()
	if err != nil {
		return nil, err
	}

	holder, since, err := c.lockHolder(ctx, resource)
	if err != nil {
		return nil, err
	}
	if holder != "" && holder != cur.InstanceID {
		return nil, &LockHeldError{Resource: resource, Holder: holder, Since: since}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := c.Store(ctx, resource, lockHolderKey, cur.InstanceID); err != nil {
		return nil, err
	}
	if err := c.Store(ctx, resource, lockTimeKey, now); err != nil {
		return nil, err
	}

	if verifyAfter > 0 {
		select {
		case <-time.After(verifyAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		holder, since, err := c.lockHolder(ctx, resource)
		if err != nil {
			return nil, err
		}
		if holder != cur.InstanceID {
			return nil, fmt.Errorf("resource %q now held by %q (since %s): %w", resource, holder, since, ErrLockLost)
		}
	}

	return &Lock{Resource: resource, Holder: cur.InstanceID, AcquiredAt: now}, nil
}

// ReleaseLock removes this session's claim from the resource scope, leaving
// any other keys in the scope untouched. Returns false when no lock was
// held; releasing another identity's lock fails with LockHeldError.
func (c *Coordinator) ReleaseLock(ctx context.Context, resource string) (bool, error) {
	cur, err := c.bound()
	if err != nil {
		return false, err
	}

	holder, since, err := c.lockHolder(ctx, resource)
	if err != nil {
		return false, err
	}
	if holder == "" {
		return false, nil
	}
	if holder != cur.InstanceID {
		return false, &LockHeldError{Resource: resource, Holder: holder, Since: since}
	}

	if _, err := c.Delete(ctx, resource, lockHolderKey); err != nil {
		return false, err
	}
	if _, err := c.Delete(ctx, resource, lockTimeKey); err != nil {
		return false, err
	}
	return true, nil
}

// lockHolder reads the current claim on a resource scope.
func (c *Coordinator) lockHolder(ctx context.Context, resource string) (holder, since string, err error) {
	v, found, err := c.Retrieve(ctx, resource, lockHolderKey)
	if err != nil || !found {
		return "", "", err
	}
	holder, _ = v.(string)
	if t, found, err := c.Retrieve(ctx, resource, lockTimeKey); err == nil && found {
		since, _ = t.(string)
	}
	return holder, since, nil
}

// Package shared holds the context passed to all CLI commands and the
// wiring that turns configuration into an opened storage environment.
package shared

import (
	"context"
	"fmt"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/config"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/detect"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"

	// Storage backends register themselves on import.
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/file"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/memory"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/redis"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/sqlite"
)

// Context carries global CLI state (flags set on the root command).
type Context struct {
	// ConfigPath overrides config discovery. When empty, resolution falls
	// through SESSION_COORDINATOR_CONFIG env → project-local → user-global
	// → built-in defaults.
	ConfigPath string
}

// Env is an opened storage environment for a CLI invocation. CLI commands
// operate outside any session: scopes are prefixed with the detected
// machine:project, but no instance is claimed.
type Env struct {
	Cfg     *config.Config
	Source  string // where the config came from
	Adapter storage.Adapter
	Machine string
	Project string
}

// OpenEnv resolves configuration, opens the configured backend, and detects
// the machine/project identity.
func (c *Context) OpenEnv(ctx context.Context) (*Env, error) {
	cfg, source, err := config.Resolve(c.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adapter, err := storage.Open(cfg.Storage.Adapter, cfg.Storage.Options)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &Env{
		Cfg:     cfg,
		Source:  source,
		Adapter: adapter,
		Machine: detect.MachineID(cfg.Session.MachineID),
		Project: detect.ProjectID(ctx, cfg.Session.ProjectDetection),
	}, nil
}

// Prefix returns the machine:project scope prefix.
func (e *Env) Prefix() string { return scope.Join(e.Machine, e.Project) }

// FullScope prepends the machine:project prefix to a logical scope.
func (e *Env) FullScope(logical string) string { return scope.Join(e.Prefix(), logical) }

// Close releases the opened backend.
func (e *Env) Close() error { return e.Adapter.Close() }

// Package mcp provides the stdio MCP server exposing the session
// coordination tools, resources, and prompts to coding agents.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/buildinfo"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/config"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/detect"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/session"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"

	// Storage backends register themselves on import.
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/file"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/memory"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/redis"
	_ "github.com/BANCS-Norway/claude-session-coordinator/internal/storage/sqlite"
)

const signOnDescription = `Sign on to claim an instance and establish session identity.

REQUIRED FIRST STEP: call this before any data operation.

Claims the first available instance (lexicographic order), or the one named
by instance_id. All further scopes are automatically prefixed with your
machine:project context. Signing on while already signed on releases the
previous instance and claims the new one.`

const signOffDescription = `Sign off and release the claimed instance for others.

Session state is preserved; only the instance registry entry flips back to
available. Safe to call when not signed on.`

const storeDescription = `Store a JSON value in a scoped context.

Scopes are logical (e.g. "session:claude_1", "issue:15") and automatically
prefixed with your machine:project context.`

const acquireLockDescription = `Place an advisory claim on a resource scope.

Cooperative locking only: the claim is a plain write of locked_by/locked_at
keys and two racing sessions can both believe they won. Set verify_ms to
re-read the claim after a short delay and detect a lost race.`

// Serve wires configuration, storage, and detection into a coordinator and
// blocks serving MCP over stdio until stdin closes.
func Serve(ctx context.Context, configPath string) error {
	cfg, _, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("mcp: resolve config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	adapter, err := storage.Open(cfg.Storage.Adapter, cfg.Storage.Options)
	if err != nil {
		return fmt.Errorf("mcp: open storage: %w", err)
	}
	defer adapter.Close()

	machine := detect.MachineID(cfg.Session.MachineID)
	project := detect.ProjectID(ctx, cfg.Session.ProjectDetection)
	coord := session.New(adapter, machine, project, cfg.Session.Instances)

	return mcpserver.ServeStdio(NewServer(coord))
}

// NewServer creates a fully configured MCP server around coord. It is
// separate from Serve so tests can drive it through an in-process transport.
func NewServer(coord *session.Coordinator) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"claude-session-coordinator", buildinfo.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)
	registerTools(s, coord)
	registerResources(s, coord)
	registerPrompts(s, coord)
	return s
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func registerTools(s *mcpserver.MCPServer, coord *session.Coordinator) { //nolint:gocognit // flat list of tool registrations
	s.AddTool(mcp.NewTool("sign_on",
		mcp.WithDescription(signOnDescription),
		mcp.WithString("instance_id",
			mcp.Description("Specific instance to claim (e.g. \"claude_1\"). First available when omitted."),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bound, err := coord.SignOn(ctx, req.GetString("instance_id", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(bound)
	})

	s.AddTool(mcp.NewTool("sign_off",
		mcp.WithDescription(signOffDescription),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prev, err := coord.SignOff(ctx)
		if err != nil {
			return toolError(err), nil
		}
		if prev == nil {
			return jsonResult(map[string]any{"status": "no active session"})
		}
		return jsonResult(map[string]any{"status": "signed off", "previous_context": prev})
	})

	storeTool := mcp.NewTool("store_data",
		mcp.WithDescription(storeDescription),
		mcp.WithString("scope", mcp.Description("Logical scope, e.g. \"session:claude_1\"."), mcp.Required()),
		mcp.WithString("key", mcp.Description("Key within the scope."), mcp.Required()),
	)
	anyParam(&storeTool, "value", "JSON value to store (any shape).", true)
	s.AddTool(storeTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, ok := req.GetArguments()["value"]
		if !ok {
			return mcp.NewToolResultError("missing required argument: value"), nil
		}
		if err := coord.Store(ctx, req.GetString("scope", ""), req.GetString("key", ""), value); err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"status": "stored"})
	})

	s.AddTool(mcp.NewTool("retrieve_data",
		mcp.WithDescription("Retrieve a value from a scoped context. found is false when the key is absent."),
		mcp.WithString("scope", mcp.Description("Logical scope."), mcp.Required()),
		mcp.WithString("key", mcp.Description("Key to retrieve."), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		value, found, err := coord.Retrieve(ctx, req.GetString("scope", ""), req.GetString("key", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"found": found, "value": value})
	})

	s.AddTool(mcp.NewTool("delete_data",
		mcp.WithDescription("Delete a key from a scope. True when the key existed; idempotent."),
		mcp.WithString("scope", mcp.Description("Logical scope."), mcp.Required()),
		mcp.WithString("key", mcp.Description("Key to delete."), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deleted, err := coord.Delete(ctx, req.GetString("scope", ""), req.GetString("key", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"deleted": deleted})
	})

	s.AddTool(mcp.NewTool("list_keys",
		mcp.WithDescription("List all keys in a scope. Empty for unknown scopes."),
		mcp.WithString("scope", mcp.Description("Logical scope."), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keys, err := coord.ListKeys(ctx, req.GetString("scope", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(keys)
	})

	s.AddTool(mcp.NewTool("list_scopes",
		mcp.WithDescription("List scopes in your machine:project context, prefix stripped. Optional glob pattern (\"session:*\")."),
		mcp.WithString("pattern", mcp.Description("Glob pattern; * matches any run of characters.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scopes, err := coord.ListScopes(ctx, req.GetString("pattern", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(scopes)
	})

	s.AddTool(mcp.NewTool("delete_scope",
		mcp.WithDescription("Delete an entire scope and all its keys. Permanent."),
		mcp.WithString("scope", mcp.Description("Scope to delete."), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deleted, err := coord.DeleteScope(ctx, req.GetString("scope", ""))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"deleted": deleted})
	})

	s.AddTool(mcp.NewTool("acquire_lock",
		mcp.WithDescription(acquireLockDescription),
		mcp.WithString("resource", mcp.Description("Resource scope to claim, e.g. \"issue:15\"."), mcp.Required()),
		mcp.WithNumber("verify_ms", mcp.Description("Re-read the claim after this many milliseconds to detect a lost race (0 = skip).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		verify := time.Duration(req.GetInt("verify_ms", 0)) * time.Millisecond
		lock, err := coord.AcquireLock(ctx, req.GetString("resource", ""), verify)
		if err != nil {
			var held *session.LockHeldError
			if errors.As(err, &held) {
				return jsonResult(map[string]any{
					"acquired":  false,
					"holder":    held.Holder,
					"locked_at": held.Since,
				})
			}
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"acquired": true, "lock": lock})
	})

	s.AddTool(mcp.NewTool("release_lock",
		mcp.WithDescription("Release this session's advisory claim on a resource scope. Other keys in the scope are untouched."),
		mcp.WithString("resource", mcp.Description("Resource scope to release."), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		released, err := coord.ReleaseLock(ctx, req.GetString("resource", ""))
		if err != nil {
			var held *session.LockHeldError
			if errors.As(err, &held) {
				return jsonResult(map[string]any{
					"released":  false,
					"holder":    held.Holder,
					"locked_at": held.Since,
				})
			}
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"released": released})
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// anyParam adds an untyped (any JSON shape) parameter to a tool's input
// schema; mcp-go's typed option helpers only cover concrete JSON types.
func anyParam(t *mcp.Tool, name, desc string, required bool) {
	t.InputSchema.Properties[name] = map[string]any{
		"description": desc,
	}
	if required {
		t.InputSchema.Required = append(t.InputSchema.Required, name)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

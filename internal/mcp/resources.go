package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/session"
)

const (
	contextResourceURI   = "session://context"
	statePrefixURI       = "session://state/"
	stateTemplateURI     = "session://state/{instance_id}"
	resourceJSONMimeType = "application/json"
)

// registerResources wires the read-only coordination resources:
// session://context (registry overview) and session://state/{instance_id}
// (peek at another session's scope).
func registerResources(s *mcpserver.MCPServer, coord *session.Coordinator) {
	s.AddResource(mcp.NewResource(
		contextResourceURI,
		"Session context",
		mcp.WithResourceDescription("Current machine/project, instance registry, active sessions, and next steps."),
		mcp.WithMIMEType(resourceJSONMimeType),
	), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		body, err := contextDocument(ctx, coord)
		if err != nil {
			return nil, err
		}
		return textResource(req.Params.URI, body), nil
	})

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		stateTemplateURI,
		"Session state",
		mcp.WithTemplateDescription("Read-only view of another session's state scope."),
		mcp.WithTemplateMIMEType(resourceJSONMimeType),
	), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		instanceID := strings.TrimPrefix(req.Params.URI, statePrefixURI)
		state, err := coord.PeekSession(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		doc := map[string]any{"instance": instanceID, "state": state}
		if len(state) == 0 {
			doc["note"] = "session not found or has no stored state"
		}
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return textResource(req.Params.URI, string(body)), nil
	})
}

// contextDocument builds the session://context payload.
func contextDocument(ctx context.Context, coord *session.Coordinator) (string, error) {
	registry, err := coord.Registry(ctx)
	if err != nil {
		return "", err
	}

	var firstAvailable any
	active := make([]map[string]any, 0)
	for _, id := range sortedIDs(registry) {
		switch registry[id] {
		case session.StatusAvailable:
			if firstAvailable == nil {
				firstAvailable = id
			}
		case session.StatusTaken:
			entry := map[string]any{"instance": id, "status": session.StatusTaken}
			state, err := coord.PeekSession(ctx, id)
			if err != nil {
				slog.Warn("context resource: peek session", "instance", id, "err", err)
			} else if len(state) > 0 {
				entry["state"] = state
			}
			active = append(active, entry)
		}
	}

	doc := map[string]any{
		"prefix":          coord.Prefix(),
		"instances":       registry,
		"active_sessions": active,
		"first_available": firstAvailable,
		"instructions": map[string]string{
			"if_not_signed_on": "Call sign_on to claim an instance.",
			"if_signed_on":     "Use store_data/retrieve_data to work with session state.",
			"when_done":        "Call sign_off to release your instance.",
		},
	}
	if cur, ok := coord.Current(); ok {
		doc["current_session"] = cur
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func textResource(uri, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: resourceJSONMimeType, Text: text},
	}
}

func sortedIDs(registry map[string]string) []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	// Deterministic ordering keeps first_available stable.
	sort.Strings(ids)
	return ids
}

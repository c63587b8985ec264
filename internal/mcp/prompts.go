package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/session"
)

// registerPrompts wires the startup and sign_off guidance prompts.
func registerPrompts(s *mcpserver.MCPServer, coord *session.Coordinator) {
	s.AddPrompt(mcp.NewPrompt("startup",
		mcp.WithPromptDescription("Guide a new session through claiming an instance."),
	), func(ctx context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return promptResult("Session startup guidance", startupText(ctx, coord)), nil
	})

	s.AddPrompt(mcp.NewPrompt("sign_off",
		mcp.WithPromptDescription("Guide a session through a clean sign-off."),
	), func(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return promptResult("Sign-off guidance", signOffText(coord)), nil
	})
}

func startupText(ctx context.Context, coord *session.Coordinator) string {
	registry, err := coord.Registry(ctx)
	if err != nil {
		return "Could not read the instance registry: " + err.Error()
	}

	var available []string
	taken := 0
	for _, id := range sortedIDs(registry) {
		switch registry[id] {
		case session.StatusAvailable:
			available = append(available, id)
		case session.StatusTaken:
			taken++
		}
	}

	if len(available) == 0 {
		return fmt.Sprintf(
			"All instances are currently taken in %s (%d active sessions).\n\n"+
				"Wait for an instance to become available, or ask the user which instance to take over.",
			coord.Prefix(), taken,
		)
	}

	return fmt.Sprintf(`# Session Coordinator Startup

You are starting a new session in: %s

Available instances: %s
Active sessions: %d

Next steps:
1. Call sign_on to claim instance %q.
2. Read session://context to see what other sessions are working on.
3. Track your progress with store_data.
4. Call sign_off when done to release your instance.`,
		coord.Prefix(), strings.Join(available, ", "), taken, available[0],
	)
}

func signOffText(coord *session.Coordinator) string {
	cur, ok := coord.Current()
	if !ok {
		return "No active session to sign off from."
	}
	return fmt.Sprintf(`# Sign-off Checklist

Before releasing instance %q:
1. Save any in-progress state with store_data (your session scope survives sign-off).
2. Release any locks you acquired with release_lock.
3. Call sign_off.`, cur.InstanceID)
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	})
}

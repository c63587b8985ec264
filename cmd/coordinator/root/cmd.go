// Package rootcmd wires the root cobra.Command for the coordinator CLI binary.
package rootcmd

import (
	"github.com/spf13/cobra"

	configcmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/config"
	getcmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/get"
	mcpcmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/mcp"
	scopescmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/scopes"
	sessionscmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/sessions"
	setcmd "github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/set"
	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/buildinfo"
)

// New creates and returns the root cobra.Command for the coordinator CLI.
func New() *cobra.Command {
	ctx := &shared.Context{}

	root := &cobra.Command{
		Use:           "coordinator",
		Short:         "Claude Session Coordinator — shared state for concurrent coding agents",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	root.PersistentFlags().StringVar(
		&ctx.ConfigPath, "config", "",
		"Path to config file (default: $SESSION_COORDINATOR_CONFIG → .claude/session-coordinator.yaml → ~/.config/claude-session-coordinator/config.yaml)",
	)

	root.AddCommand(
		mcpcmd.New(ctx).Cmd(),
		configcmd.New(ctx).Cmd(),
		sessionscmd.New(ctx).Cmd(),
		scopescmd.New(ctx).Cmd(),
		getcmd.New(ctx).Cmd(),
		setcmd.New(ctx).Cmd(),
	)

	return root
}

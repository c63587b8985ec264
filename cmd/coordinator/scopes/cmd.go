// Package scopescmd implements the `coordinator scopes` command.
package scopescmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/scope"
)

// Command implements `coordinator scopes`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
	all bool
}

// New creates the scopes command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "scopes [pattern]",
		Short: "List scopes for this machine and project, optionally filtered by a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.run,
	}
	c.cmd.Flags().BoolVar(&c.all, "all", false,
		"List every scope in the backend, across all machines and projects")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	env, err := c.ctx.OpenEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}

	if c.all {
		scopes, err := env.Adapter.ListScopes(cmd.Context(), pattern)
		if err != nil {
			return err
		}
		for _, s := range scopes {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	}

	full := env.Prefix() + scope.Delimiter + "*"
	if pattern != "" {
		full = env.FullScope(pattern)
	}
	scopes, err := env.Adapter.ListScopes(cmd.Context(), full)
	if err != nil {
		return err
	}
	strip := env.Prefix() + scope.Delimiter
	for _, s := range scopes {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimPrefix(s, strip))
	}
	return nil
}

// Package sessionscmd implements the `coordinator sessions` command.
package sessionscmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
	"github.com/BANCS-Norway/claude-session-coordinator/internal/session"
)

// Command implements `coordinator sessions`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the sessions command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "sessions",
		Short: "Show the instance registry for this machine and project",
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	env, err := c.ctx.OpenEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	coord := session.New(env.Adapter, env.Machine, env.Project, env.Cfg.Session.Instances)
	registry, err := coord.Registry(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", coord.Prefix())
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s\n", id, registry[id])
	}
	return nil
}

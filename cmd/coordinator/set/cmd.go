// Package setcmd implements the `coordinator set` command.
package setcmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
)

// Command implements `coordinator set`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the set command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "set <scope> <key> <json-value>",
		Short: "Store a JSON value (scope is auto-prefixed with machine:project)",
		Args:  cobra.ExactArgs(3),
		RunE:  c.run,
	}
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

	var value any
	if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
		return fmt.Errorf("value must be valid JSON: %w", err)
	}

	if err := env.Adapter.Store(cmd.Context(), env.FullScope(args[0]), args[1], value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s\n", args[0], args[1])
	return nil
}

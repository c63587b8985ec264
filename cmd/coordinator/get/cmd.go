// Package getcmd implements the `coordinator get` command.
package getcmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yalp/jsonpath"

	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
)

// Command implements `coordinator get`.
type Command struct {
	ctx  *shared.Context
	cmd  *cobra.Command
	path string
}

// New creates the get command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "get <scope> <key>",
		Short: "Retrieve a stored value (scope is auto-prefixed with machine:project)",
		Args:  cobra.ExactArgs(2),
		RunE:  c.run,
	}
	c.cmd.Flags().StringVar(&c.path, "path", "",
		`JSONPath to extract from the value, e.g. "$.todos[0].task"`)
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

	value, found, err := env.Adapter.Retrieve(cmd.Context(), env.FullScope(args[0]), args[1])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("key %q not found in scope %q", args[1], args[0])
	}

	if c.path != "" {
		value, err = jsonpath.Read(value, c.path)
		if err != nil {
			return fmt.Errorf("jsonpath %q: %w", c.path, err)
		}
	}

	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// Package configcmd implements the `coordinator config` command.
package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BANCS-Norway/claude-session-coordinator/cmd/coordinator/shared"
)

// Command implements `coordinator config`.
type Command struct {
	ctx      *shared.Context
	cmd      *cobra.Command
	validate bool
}

// New creates the config command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE:  c.run,
	}
	c.cmd.Flags().BoolVar(&c.validate, "validate", false,
		"Also construct the configured storage backend to verify it works")
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

	out, err := yaml.Marshal(env.Cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", env.Source, out)
	fmt.Fprintf(cmd.OutOrStdout(), "# machine: %s\n# project: %s\n", env.Machine, env.Project)

	if c.validate {
		// OpenEnv already constructed the backend; a listing proves it responds.
		if _, err := env.Adapter.ListScopes(cmd.Context(), ""); err != nil {
			return fmt.Errorf("storage backend check failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "# storage: ok")
	}
	return nil
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/config"
)

func writeConfig(c *qt.C, content string) string {
	path := filepath.Join(c.TempDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte(content), 0o644), qt.IsNil)
	return path
}

func TestDefault(t *testing.T) {
	c := qt.New(t)

	cfg := config.Default()
	c.Assert(cfg.Storage.Adapter, qt.Equals, "file")
	c.Assert(cfg.Storage.Options.String("path", ""), qt.Equals, ".claude/session-state")
	c.Assert(cfg.Session.MachineID, qt.Equals, "auto")
	c.Assert(cfg.Session.ProjectDetection, qt.Equals, "git")
	c.Assert(cfg.Session.Instances, qt.DeepEquals, []string{"claude_1", "claude_2", "claude_3", "claude_4"})
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestLoad_HappyPath(t *testing.T) {
	c := qt.New(t)

	path := writeConfig(c, `
storage:
  adapter: redis
  options:
    url: redis://localhost:6379/0
session:
  machine_id: build-box
  project_detection: directory
  instances:
    - worker_a
    - worker_b
`)
	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Storage.Adapter, qt.Equals, "redis")
	c.Assert(cfg.Storage.Options.String("url", ""), qt.Equals, "redis://localhost:6379/0")
	c.Assert(cfg.Session.MachineID, qt.Equals, "build-box")
	c.Assert(cfg.Session.ProjectDetection, qt.Equals, "directory")
	c.Assert(cfg.Session.Instances, qt.DeepEquals, []string{"worker_a", "worker_b"})
}

func TestLoad_PartialOverrideKeepsDefaults(t *testing.T) {
	c := qt.New(t)

	path := writeConfig(c, `
storage:
  adapter: sqlite
`)
	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Storage.Adapter, qt.Equals, "sqlite")
	// Untouched sections keep their defaults.
	c.Assert(cfg.Session.MachineID, qt.Equals, "auto")
	c.Assert(cfg.Session.Instances, qt.HasLen, 4)
}

func TestLoad_MissingFileIsDefault(t *testing.T) {
	c := qt.New(t)

	cfg, err := config.Load(filepath.Join(c.TempDir(), "nope.yaml"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, config.Default())
}

func TestLoad_MalformedYAML(t *testing.T) {
	c := qt.New(t)

	path := writeConfig(c, "storage: [unbalanced")
	_, err := config.Load(path)
	c.Assert(err, qt.IsNotNil)
	c.Assert(err.Error(), qt.Contains, "config.Load")
}

func TestResolve_Precedence(t *testing.T) {
	c := qt.New(t)

	explicit := writeConfig(c, "storage:\n  adapter: memory\n")
	envPath := writeConfig(c, "storage:\n  adapter: sqlite\n")

	c.Run("explicit path wins over env", func(c *qt.C) {
		c.Setenv(config.EnvConfigPath, envPath)
		cfg, source, err := config.Resolve(explicit)
		c.Assert(err, qt.IsNil)
		c.Assert(source, qt.Equals, "flag")
		c.Assert(cfg.Storage.Adapter, qt.Equals, "memory")
	})

	c.Run("env wins when no explicit path", func(c *qt.C) {
		c.Setenv(config.EnvConfigPath, envPath)
		cfg, source, err := config.Resolve("")
		c.Assert(err, qt.IsNil)
		c.Assert(source, qt.Equals, "env")
		c.Assert(cfg.Storage.Adapter, qt.Equals, "sqlite")
	})

	c.Run("nonexistent env path falls through", func(c *qt.C) {
		c.Setenv(config.EnvConfigPath, filepath.Join(c.TempDir(), "nope.yaml"))
		c.Setenv("HOME", c.TempDir()) // no user config either
		cfg, source, err := config.Resolve("")
		c.Assert(err, qt.IsNil)
		// Either project-local config (if the working tree has one) or default.
		c.Assert(source, qt.Not(qt.Equals), "env")
		c.Assert(cfg, qt.Not(qt.IsNil))
	})
}

func TestValidate(t *testing.T) {
	c := qt.New(t)

	cfg := config.Default()
	cfg.Storage.Adapter = ""
	c.Assert(cfg.Validate(), qt.ErrorMatches, `config: storage.adapter must not be empty`)

	cfg = config.Default()
	cfg.Session.ProjectDetection = "carrier-pigeon"
	c.Assert(cfg.Validate(), qt.ErrorMatches, `config: unknown project_detection .*`)
}

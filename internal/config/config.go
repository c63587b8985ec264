// Package config handles configuration discovery and loading for the
// coordinator: which storage backend to use with which options, and how the
// session identity (machine, project, instances) is resolved.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BANCS-Norway/claude-session-coordinator/internal/storage"
)

// EnvConfigPath names the environment variable that points at an explicit
// config file, taking precedence over the discovery chain.
const EnvConfigPath = "SESSION_COORDINATOR_CONFIG"

// ProjectConfigPath is the project-local config location.
const ProjectConfigPath = ".claude/session-coordinator.yaml"

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Adapter string          `yaml:"adapter"` // "file" | "sqlite" | "redis" | "memory" | registered custom
	Options storage.Options `yaml:"options"`
}

// SessionConfig controls session identity resolution.
type SessionConfig struct {
	MachineID        string   `yaml:"machine_id"`        // "auto" = hostname, or a literal value
	ProjectDetection string   `yaml:"project_detection"` // "git" | "directory"
	Instances        []string `yaml:"instances"`         // registry seed for first sign-on
}

// Config is the root configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
}

// Default returns the built-in configuration: file backend under
// .claude/session-state, hostname machine id, git project detection, and
// four claimable instances.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Adapter: "file",
			Options: storage.Options{"path": ".claude/session-state"},
		},
		Session: SessionConfig{
			MachineID:        "auto",
			ProjectDetection: "git",
			Instances:        []string{"claude_1", "claude_2", "claude_3", "claude_4"},
		},
	}
}

// Load reads the config file at path, applying only the keys that are
// present so missing keys keep their defaults. A missing file returns
// Default() with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config.Load %s: %w", path, err)
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		if v, ok := st["adapter"].(string); ok && v != "" {
			cfg.Storage.Adapter = v
		}
		if v, ok := st["options"].(map[string]any); ok {
			cfg.Storage.Options = storage.Options(v)
		}
	}

	if se, ok := raw["session"].(map[string]any); ok {
		if v, ok := se["machine_id"].(string); ok && v != "" {
			cfg.Session.MachineID = v
		}
		if v, ok := se["project_detection"].(string); ok && v != "" {
			cfg.Session.ProjectDetection = v
		}
		if v, ok := se["instances"].([]any); ok {
			instances := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					instances = append(instances, s)
				}
			}
			cfg.Session.Instances = instances
		}
	}

	return cfg, nil
}

// userConfigPath returns the user-global config location.
func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "claude-session-coordinator", "config.yaml"), nil
}

// Resolve finds and loads the effective configuration.
// Priority: explicit path argument → SESSION_COORDINATOR_CONFIG env →
// project-local .claude/session-coordinator.yaml → user-global
// ~/.config/claude-session-coordinator/config.yaml → built-in defaults.
// source reports which of "flag", "env", "project", "user", "default" won.
func Resolve(explicit string) (cfg *Config, source string, err error) {
	if explicit != "" {
		cfg, err = Load(explicit)
		return cfg, "flag", err
	}

	if env := os.Getenv(EnvConfigPath); env != "" {
		if _, statErr := os.Stat(env); statErr == nil {
			cfg, err = Load(env)
			return cfg, "env", err
		}
	}

	if _, statErr := os.Stat(ProjectConfigPath); statErr == nil {
		cfg, err = Load(ProjectConfigPath)
		return cfg, "project", err
	}

	if userPath, pathErr := userConfigPath(); pathErr == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			cfg, err = Load(userPath)
			return cfg, "user", err
		}
	}

	return Default(), "default", nil
}

// Validate checks the configuration for structural problems. It does not
// construct the backend; `coordinator config --validate` does that on top.
func (c *Config) Validate() error {
	if c.Storage.Adapter == "" {
		return fmt.Errorf("config: storage.adapter must not be empty")
	}
	switch c.Session.ProjectDetection {
	case "", "git", "directory":
	default:
		return fmt.Errorf("config: unknown project_detection %q (want git or directory)", c.Session.ProjectDetection)
	}
	return nil
}

// Package detect resolves the machine and project identifiers that form the
// session scope prefix: hostname for the machine, git remote (or directory
// name) for the project.
package detect

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// MachineID returns the machine identifier. override wins unless it is empty
// or the literal "auto", in which case the hostname is used.
func MachineID(override string) string {
	if override != "" && override != "auto" {
		return override
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// ProjectID returns the project identifier using the given strategy:
// "git" (default) parses owner/repo from the origin remote and falls back to
// the directory name; "directory" uses the working directory base name.
func ProjectID(ctx context.Context, strategy string) string {
	if strategy == "directory" {
		return directoryProject()
	}
	return gitProject(ctx)
}

func directoryProject() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return filepath.Base(cwd)
}

func gitProject(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		return directoryProject()
	}
	remote := strings.TrimSpace(string(out))
	if project, ok := ParseRemote(remote); ok {
		return project
	}
	slog.Warn("unparseable git remote, using directory name", "remote", remote)
	return directoryProject()
}

// ParseRemote extracts "owner/repo" from a git remote URL. Both SSH
// (git@host:owner/repo.git) and HTTP(S) (https://host/owner/repo.git)
// forms are supported.
func ParseRemote(remote string) (string, bool) {
	switch {
	case strings.HasPrefix(remote, "git@"):
		_, path, ok := strings.Cut(remote, ":")
		if !ok {
			return "", false
		}
		return trimRepoPath(path)
	case strings.HasPrefix(remote, "http://"), strings.HasPrefix(remote, "https://"):
		trimmed := strings.TrimRight(remote, "/")
		parts := strings.Split(trimmed, "/")
		if len(parts) < 2 {
			return "", false
		}
		return trimRepoPath(parts[len(parts)-2] + "/" + parts[len(parts)-1])
	}
	return "", false
}

func trimRepoPath(path string) (string, bool) {
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	if path == "" || !strings.Contains(path, "/") {
		return "", false
	}
	return path, true
}

// Package publish hands a finished niche directory to a hosting target.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"postforge/internal/config"
	"postforge/internal/logger"
)

// Publisher makes a generated niche directory available and returns its URL.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, repoName, dir string) (string, error)
}

// ErrUnknownProvider is returned for an unrecognised publish provider.
var ErrUnknownProvider = errors.New("unknown publish provider")

// New returns the publisher configured in cfg.
func New(cfg config.Publish) (Publisher, error) {
	switch cfg.Provider {
	case "", "none":
		return None{}, nil
	case "git":
		if cfg.Remote == "" {
			return nil, fmt.Errorf("git publisher requires publish.remote")
		}
		branch := cfg.Branch
		if branch == "" {
			branch = "main"
		}
		return &Git{Remote: cfg.Remote, Branch: branch}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// None leaves the directory in place and returns its file URL.
type None struct{}

// Name implements Publisher.
func (None) Name() string { return "none" }

// Publish implements Publisher.
func (None) Publish(ctx context.Context, repoName, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("publish directory: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Git commits the directory and pushes it to a remote.
type Git struct {
	Remote string
	Branch string
}

// Name implements Publisher.
func (g *Git) Name() string { return "git" }

// Publish implements Publisher. The directory becomes (or stays) a repository
// whose branch is pushed to Remote. Nothing in dir other than .git is modified.
func (g *Git) Publish(ctx context.Context, repoName, dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if _, err := runGit(ctx, dir, "init"); err != nil {
			return "", err
		}
	}
	if _, err := runGit(ctx, dir, "checkout", "-B", g.Branch); err != nil {
		return "", err
	}
	if _, err := runGit(ctx, dir, "add", "-A"); err != nil {
		return "", err
	}

	if _, err := runGit(ctx, dir, "diff", "--cached", "--quiet"); err != nil {
		args := []string{"commit", "-m", fmt.Sprintf("Publish %s", repoName)}
		if email, _ := runGit(ctx, dir, "config", "user.email"); email == "" {
			args = append([]string{"-c", "user.name=postforge", "-c", "user.email=postforge@localhost"}, args...)
		}
		if _, err := runGit(ctx, dir, args...); err != nil {
			return "", err
		}
	} else {
		logger.Info("Nothing new to commit", "dir", dir)
	}

	if _, err := runGit(ctx, dir, "remote", "get-url", "origin"); err != nil {
		if _, err := runGit(ctx, dir, "remote", "add", "origin", g.Remote); err != nil {
			return "", err
		}
	} else if _, err := runGit(ctx, dir, "remote", "set-url", "origin", g.Remote); err != nil {
		return "", err
	}

	if _, err := runGit(ctx, dir, "push", "-u", "origin", g.Branch); err != nil {
		return "", err
	}
	return g.Remote, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(output)), nil
}

// Package gitsource checks out the configured project repository for a run.
package gitsource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// Checkout is the result of a successful repository checkout.
type Checkout struct {
	Path   string // working tree on disk
	Commit string // resolved HEAD commit hash
	Branch string
}

// Client handles git operations against the configured project repository.
type Client struct {
	workspaceDir string
}

// NewClient creates a git client rooted at the given workspace directory.
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir}
}

// Checkout clones the project repository fresh, or fast-forwards an existing
// checkout. A dirty or diverged existing checkout falls back to a fresh clone.
func (c *Client) Checkout(project config.ProjectConfig) (*Checkout, error) {
	repoPath := filepath.Join(c.workspaceDir, "source")

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
		if co, err := c.update(repoPath, project); err == nil {
			return co, nil
		}
		slog.Warn("Incremental update failed, falling back to fresh clone", "path", repoPath)
	}

	return c.clone(repoPath, project)
}

func (c *Client) clone(repoPath string, project config.ProjectConfig) (*Checkout, error) {
	slog.Debug("Cloning repository", "url", project.URL, "branch", project.Branch, "path", repoPath)

	if err := os.RemoveAll(repoPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityFatal, "failed to remove existing checkout")
	}

	opts := &git.CloneOptions{
		URL:           project.URL,
		ReferenceName: plumbing.ReferenceName("refs/heads/" + project.Branch),
		SingleBranch:  true,
		Depth:         1,
	}
	auth, err := authMethod(project.Auth)
	if err != nil {
		return nil, err
	}
	opts.Auth = auth

	repo, err := git.PlainClone(repoPath, false, opts)
	if err != nil {
		return nil, classifyGitError(project.URL, "clone", err)
	}

	return resolveHead(repo, repoPath, project.Branch)
}

func (c *Client) update(repoPath string, project config.ProjectConfig) (*Checkout, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, classifyGitError(project.URL, "open", err)
	}

	auth, err := authMethod(project.Auth)
	if err != nil {
		return nil, err
	}

	err = repo.Fetch(&git.FetchOptions{RemoteName: "origin", Auth: auth, Force: true})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, classifyGitError(project.URL, "fetch", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, classifyGitError(project.URL, "worktree", err)
	}

	remoteRef, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/"+project.Branch), true)
	if err != nil {
		return nil, classifyGitError(project.URL, "resolve", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return nil, classifyGitError(project.URL, "reset", err)
	}

	slog.Info("Repository updated", "url", project.URL, "commit", shortHash(remoteRef.Hash().String()), "path", repoPath)
	return &Checkout{Path: repoPath, Commit: remoteRef.Hash().String(), Branch: project.Branch}, nil
}

func resolveHead(repo *git.Repository, repoPath, branch string) (*Checkout, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, "failed to resolve HEAD")
	}
	slog.Info("Repository cloned successfully", "commit", shortHash(ref.Hash().String()), "path", repoPath)
	return &Checkout{Path: repoPath, Commit: ref.Hash().String(), Branch: branch}, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// authMethod maps the configured auth to a go-git transport method.
// A nil config means anonymous access.
func authMethod(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "token":
		if cfg.Token == "" {
			return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "token authentication requires a token")
		}
		// Most git hosting services use "token" as the username for token auth
		return &githttp.BasicAuth{Username: "token", Password: cfg.Token}, nil
	case "basic":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "basic authentication requires username and password")
		}
		return &githttp.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case "ssh":
		if cfg.KeyPath == "" {
			return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "ssh authentication requires key_path")
		}
		keys, err := gitssh.NewPublicKeysFromFile("git", cfg.KeyPath, "")
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryAuth, apperrors.SeverityFatal, "failed to load ssh key")
		}
		return keys, nil
	default:
		return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, fmt.Sprintf("unknown auth type %q", cfg.Type))
	}
}

// classifyGitError wraps go-git errors with categories so the queue can
// distinguish transient network failures from permanent ones.
func classifyGitError(url, op string, err error) error {
	l := strings.ToLower(err.Error())
	msg := fmt.Sprintf("git %s failed for %s", op, url)
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") || strings.Contains(l, "invalid username or password"):
		return apperrors.Wrap(err, apperrors.CategoryAuth, apperrors.SeverityFatal, msg)
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityFatal, msg)
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"),
		strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout"),
		strings.Contains(l, "connection refused") || strings.Contains(l, "connection reset"):
		return apperrors.WrapRetryable(err, apperrors.CategoryNetwork, apperrors.SeverityError, msg)
	default:
		return apperrors.Wrap(err, apperrors.CategoryGit, apperrors.SeverityError, msg)
	}
}

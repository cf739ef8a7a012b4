// Package source resolves the on-disk location of a project, cloning
// or pulling remote git repositories into the workspace as needed.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

var ErrSourceSync = errors.New("source sync failed")

// Action records what Resolve did to produce the project directory.
type Action string

const (
	ActionNone   Action = "none"
	ActionCloned Action = "cloned"
	ActionPulled Action = "pulled"
)

// Result is the resolved project directory and a human-readable
// account of how it was obtained.
type Result struct {
	Path      string
	Action    Action
	Narrative []string
}

func (r *Result) note(format string, args ...any) {
	r.Narrative = append(r.Narrative, fmt.Sprintf(format, args...))
}

// Resolver maps projects to directories.
type Resolver struct {
	workspace string
	auth      Auth
}

// NewResolver returns a Resolver that clones remote repositories
// under workspace.
func NewResolver(workspace string, auth Auth) *Resolver {
	if strings.TrimSpace(workspace) == "" {
		workspace = "workspace"
	}
	return &Resolver{workspace: workspace, auth: auth}
}

// Resolve returns the directory the project's script runs in. Local
// projects use their configured path as-is. Remote projects are
// cloned on first use and pulled on every later use, never both.
func (r *Resolver) Resolve(ctx context.Context, p *models.Project) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: project is required", ErrSourceSync)
	}

	switch p.SourceType {
	case models.SourceTypeLocal, "":
		return &Result{Path: p.SourcePath, Action: ActionNone}, nil
	case models.SourceTypeRemoteGit:
		return r.sync(ctx, p.SourceURL)
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", ErrSourceSync, p.SourceType)
	}
}

// Destination returns the workspace directory a remote URL is
// cloned into.
func (r *Resolver) Destination(url string) (string, error) {
	name := RepoName(url)
	if name == "" {
		return "", fmt.Errorf("%w: cannot derive repository name from %q", ErrSourceSync, url)
	}
	return filepath.Join(r.workspace, name), nil
}

func (r *Resolver) sync(ctx context.Context, url string) (*Result, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: remote-git project has no source url", ErrSourceSync)
	}

	dest, err := r.Destination(url)
	if err != nil {
		return nil, err
	}

	auth, err := r.auth.method(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceSync, err)
	}

	res := &Result{Path: dest}

	if _, err := os.Stat(filepath.Join(dest, git.GitDirName)); err == nil {
		res.Action = ActionPulled
		res.note("Pulling latest changes in %s", dest)
		log.Info("pulling repository", "url", url, "dir", dest)

		updated, err := pull(ctx, dest, auth)
		if err != nil {
			res.note("Pull failed: %v", err)
			return res, fmt.Errorf("%w: pull %s: %v", ErrSourceSync, dest, err)
		}
		if !updated {
			res.note("Already up to date")
		}
		return res, nil
	}

	res.Action = ActionCloned
	res.note("Cloning %s into %s", url, dest)
	log.Info("cloning repository", "url", url, "dir", dest)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return res, fmt.Errorf("%w: create %s: %v", ErrSourceSync, dest, err)
	}

	if _, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url, Auth: auth}); err != nil {
		res.note("Clone failed: %v", err)
		_ = os.RemoveAll(filepath.Join(dest, git.GitDirName))
		return res, fmt.Errorf("%w: clone %s: %v", ErrSourceSync, url, err)
	}

	return res, nil
}

// pull fast-forwards the checked-out branch, hard resetting to the
// remote head when histories diverged. It reports whether anything
// changed.
func pull(ctx context.Context, dir string, auth transport.AuthMethod) (bool, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return false, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}

	head, err := repo.Head()
	if err != nil {
		return false, err
	}
	branch := head.Name()

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    git.DefaultRemoteName,
		ReferenceName: branch,
		Auth:          auth,
		SingleBranch:  true,
		Force:         true,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, git.NoErrAlreadyUpToDate), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return false, nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		ref, refErr := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch.Short()), true)
		if refErr != nil {
			return false, refErr
		}
		if resetErr := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); resetErr != nil {
			return false, resetErr
		}
		return true, nil
	default:
		return false, err
	}
}

// RepoName derives a directory name from a repository URL, e.g.
// "https://github.com/acme/etl.git" and "git@github.com:acme/etl"
// both yield "etl".
func RepoName(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return ""
	}

	// scp-like syntax uses ':' before the path.
	if i := strings.LastIndex(url, ":"); i >= 0 && !strings.Contains(url, "://") {
		url = url[i+1:]
	}

	name := strings.TrimSuffix(path.Base(filepath.ToSlash(url)), ".git")
	switch name {
	case "", ".", "/", "..":
		return ""
	}
	return name
}

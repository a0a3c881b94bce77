package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/logger"
)

// GitFetcher realizes Git sources by shelling out to the git binary
// through a CommandRunner.
type GitFetcher struct {
	runner CommandRunner
}

// NewGitFetcher creates a GitFetcher. A nil runner defaults to ExecRunner.
func NewGitFetcher(runner CommandRunner) *GitFetcher {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &GitFetcher{runner: runner}
}

// Fetch realizes a Git source into target. prevCommit is the commit the
// lock file recorded for this capability, used for change detection.
// Fetching an unchanged source is idempotent: the second call reports
// Updated=false and writes nothing.
func (g *GitFetcher) Fetch(ctx context.Context, id string, cfg *Config, target, prevCommit string) (*FetchResult, error) {
	if cfg.Path != "" {
		return g.fetchSubdirectory(ctx, id, cfg, target, prevCommit)
	}

	var commit string
	var updated bool
	var err error

	if dirExists(filepath.Join(target, ".git")) {
		commit, updated, err = g.update(ctx, cfg, target)
	} else {
		commit, err = g.clone(ctx, cfg, target)
		updated = commit != prevCommit
	}
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		ID:      id,
		Path:    target,
		Commit:  commit,
		Updated: updated,
	}, nil
}

// clone performs a shallow clone of the source into target.
func (g *GitFetcher) clone(ctx context.Context, cfg *Config, target string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", filepath.Dir(target))
	}

	args := []string{"clone", "--depth", "1"}
	if cfg.IsPinned() {
		args = append(args, "--branch", cfg.Version)
	}
	args = append(args, cfg.CloneURL(), target)

	if _, stderr, err := g.runner.Run(ctx, "", "git", args...); err != nil {
		return "", errors.Wrapf(ErrCloneFailed, "%s: %s", cfg.CloneURL(), strings.TrimSpace(stderr))
	}
	return g.HeadCommit(ctx, target)
}

// update fetches the remote and fast-forwards an existing checkout.
func (g *GitFetcher) update(ctx context.Context, cfg *Config, target string) (string, bool, error) {
	if _, stderr, err := g.runner.Run(ctx, target, "git", "fetch", "origin"); err != nil {
		return "", false, errors.Wrapf(ErrFetchFailed, "%s: %s", cfg.CloneURL(), strings.TrimSpace(stderr))
	}

	local, err := g.HeadCommit(ctx, target)
	if err != nil {
		return "", false, err
	}
	remote, err := g.resolveRemote(ctx, cfg, target)
	if err != nil {
		return "", false, err
	}

	if local == remote {
		return local, false, nil
	}

	logger.G(ctx).WithFields(map[string]any{
		"local":  short(local),
		"remote": short(remote),
	}).Debug("fast-forwarding checkout")

	if _, stderr, err := g.runner.Run(ctx, target, "git", "pull", "--ff-only"); err != nil {
		return "", false, errors.Wrapf(ErrPullFailed, "%s: %s", cfg.CloneURL(), strings.TrimSpace(stderr))
	}

	commit, err := g.HeadCommit(ctx, target)
	if err != nil {
		return "", false, err
	}
	return commit, true, nil
}

// resolveRemote resolves the commit the configured ref points at after a
// fetch. Pinned sources resolve their declared ref; unpinned sources
// resolve the remote default branch.
func (g *GitFetcher) resolveRemote(ctx context.Context, cfg *Config, target string) (string, error) {
	if cfg.IsPinned() {
		// Branches live under origin/, tags do not. Try both.
		if out, _, err := g.runner.Run(ctx, target, "git", "rev-parse", "origin/"+cfg.Version); err == nil {
			return strings.TrimSpace(out), nil
		}
		out, stderr, err := g.runner.Run(ctx, target, "git", "rev-parse", cfg.Version+"^{commit}")
		if err != nil {
			return "", errors.Wrapf(ErrFetchFailed, "cannot resolve ref %q: %s", cfg.Version, strings.TrimSpace(stderr))
		}
		return strings.TrimSpace(out), nil
	}

	out, stderr, err := g.runner.Run(ctx, target, "git", "rev-parse", "origin/HEAD")
	if err != nil {
		return "", errors.Wrapf(ErrFetchFailed, "cannot resolve origin/HEAD: %s", strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(out), nil
}

// fetchSubdirectory clones the repository into a temporary directory and
// copies the declared subtree into target. The temp directory is removed
// on every exit path.
func (g *GitFetcher) fetchSubdirectory(ctx context.Context, id string, cfg *Config, target, prevCommit string) (*FetchResult, error) {
	tmp, err := os.MkdirTemp("", "omni-git-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(tmp)

	repoDir := filepath.Join(tmp, "repo")
	commit, err := g.clone(ctx, cfg, repoDir)
	if err != nil {
		return nil, err
	}

	subdir := filepath.Join(repoDir, filepath.FromSlash(cfg.Path))
	if !dirExists(subdir) {
		return nil, errors.Wrapf(ErrPathNotFoundInRepo, "%s in %s", cfg.Path, cfg.CloneURL())
	}

	updated := commit != prevCommit || !dirExists(target)
	if updated {
		if err := os.RemoveAll(target); err != nil {
			return nil, errors.Wrapf(err, "failed to clear %s", target)
		}
		if err := copyTree(subdir, target); err != nil {
			return nil, err
		}
	}

	return &FetchResult{
		ID:      id,
		Path:    target,
		Commit:  commit,
		Updated: updated,
	}, nil
}

// HeadCommit returns the commit hash of the checkout at dir. It also
// satisfies lockfile.CommitResolver for integrity verification.
func (g *GitFetcher) HeadCommit(ctx context.Context, dir string) (string, error) {
	out, stderr, err := g.runner.Run(ctx, dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", errors.Wrapf(ErrFetchFailed, "rev-parse HEAD in %s: %s", dir, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(out), nil
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

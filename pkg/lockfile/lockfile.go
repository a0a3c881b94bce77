// Package lockfile persists the resolved version, commit, and content
// hash of every installed capability in omni.lock.toml. The lock file is
// the single source of truth for what is currently installed; it is
// machine-owned and rewritten at most once per sync batch.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/logger"
)

// FileName is the lock file name at the project root.
const FileName = "omni.lock.toml"

// Entry records the resolved state of one capability.
type Entry struct {
	Source        string    `toml:"source"`
	Version       string    `toml:"version"`
	VersionSource string    `toml:"version_source,omitempty"`
	Commit        string    `toml:"commit,omitempty"`
	ContentHash   string    `toml:"content_hash,omitempty"`
	PinnedVersion string    `toml:"pinned_version,omitempty"`
	UpdatedAt     time.Time `toml:"updated_at"`
}

// SameRevision reports whether two entries point at the same resolved
// commit or content hash.
func (e Entry) SameRevision(other Entry) bool {
	return e.Commit == other.Commit && e.ContentHash == other.ContentHash
}

// LockFile is the full omni.lock.toml document.
type LockFile struct {
	Capabilities map[string]Entry `toml:"capabilities"`
}

// New returns an empty lock file.
func New() *LockFile {
	return &LockFile{Capabilities: map[string]Entry{}}
}

// Load reads the lock file at path. A missing or malformed file yields an
// empty lock file: a corrupt lock must never block a fresh sync.
func Load(ctx context.Context, path string) *LockFile {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("failed to read lock file, starting empty")
		}
		return New()
	}

	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Warn("invalid lock file, starting empty")
		return New()
	}
	if lf.Capabilities == nil {
		lf.Capabilities = map[string]Entry{}
	}
	return &lf
}

const header = `# This file is generated and owned by omni. Do not edit.
# It records the exact resolved version of every installed capability.

`

// Save writes the lock file atomically (temp file plus rename).
func (lf *LockFile) Save(path string) error {
	data, err := toml.Marshal(lf)
	if err != nil {
		return errors.Wrap(err, "failed to marshal lock file")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(header), data...), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %s to %s", tmp, path)
	}
	return nil
}

// CheckVersionMismatch warns when a capability's commit moved but its
// human-authored version did not: the author should have bumped
// capability.toml. Hash-sourced versions change silently by design, so
// they never warn. Returns "" when there is nothing to report.
func CheckVersionMismatch(id string, prev Entry, newCommit, newVersion string) string {
	if prev.Commit == "" || newCommit == "" || prev.Commit == newCommit {
		return ""
	}
	if prev.Version != newVersion {
		return ""
	}
	if prev.VersionSource != "capability.toml" {
		return ""
	}
	return fmt.Sprintf("capability %s: content changed (commit %s -> %s) but capability.toml version is still %q",
		id, short(prev.Commit), short(newCommit), newVersion)
}

// CommitResolver resolves the HEAD commit of a checked-out directory.
type CommitResolver interface {
	HeadCommit(ctx context.Context, dir string) (string, error)
}

// TreeHasher hashes a directory tree.
type TreeHasher interface {
	Hash(dir string) (string, error)
}

// VerifyIntegrity recomputes the current commit or content hash of an
// installed capability and reports local drift. The result is advisory:
// a non-empty string describes the mismatch, "" means clean.
func VerifyIntegrity(ctx context.Context, id string, e Entry, dir string, commits CommitResolver, hasher TreeHasher) string {
	switch {
	case e.Commit != "":
		current, err := commits.HeadCommit(ctx, dir)
		if err != nil {
			return fmt.Sprintf("capability %s: could not resolve current commit: %v", id, err)
		}
		if current != e.Commit {
			return fmt.Sprintf("capability %s: content modified locally (commit %s, locked %s)",
				id, short(current), short(e.Commit))
		}
	case e.ContentHash != "":
		current, err := hasher.Hash(dir)
		if err != nil {
			return fmt.Sprintf("capability %s: could not hash content: %v", id, err)
		}
		if current != e.ContentHash {
			return fmt.Sprintf("capability %s: content modified locally (hash %s, locked %s)",
				id, short(current), short(e.ContentHash))
		}
	}
	return ""
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

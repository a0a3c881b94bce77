// Package hashdir computes deterministic SHA-256 digests over directory
// trees. Entries are visited in sorted order at every level and each
// file's relative path and raw bytes are fed into a single running hash,
// so two trees with the same (path, content) pairs always hash the same
// regardless of filesystem listing order.
package hashdir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// DefaultExcludes are directory and file names skipped by default:
// VCS metadata, package managers' trees, and cache directories.
var DefaultExcludes = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	"__pycache__",
	".DS_Store",
	"target",
	"dist",
	".cache",
}

// Hasher hashes directory trees with a configurable exclude list.
type Hasher struct {
	excludes []string
	globs    []glob.Glob
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithExcludes replaces the default exclude patterns. A pattern matches
// an entry's base name exactly, a relative path by prefix, or — when it
// contains glob metacharacters — either of the two as a glob.
func WithExcludes(patterns ...string) Option {
	return func(h *Hasher) {
		h.excludes = patterns
	}
}

// New creates a Hasher. Without options the default excludes apply.
func New(opts ...Option) *Hasher {
	h := &Hasher{excludes: DefaultExcludes}
	for _, opt := range opts {
		opt(h)
	}
	for _, p := range h.excludes {
		if strings.ContainsAny(p, "*?[{") {
			if g, err := glob.Compile(p); err == nil {
				h.globs = append(h.globs, g)
			}
		}
	}
	return h
}

// Hash returns the hex SHA-256 digest of the tree rooted at dir.
func (h *Hasher) Hash(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", dir)
	}
	if !info.IsDir() {
		return "", errors.Errorf("%s is not a directory", dir)
	}

	digest := sha256.New()
	if err := h.hashTree(digest, dir, ""); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (h *Hasher) hashTree(digest hash.Hash, dir, rel string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read directory %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}
		if h.excluded(name, entryRel) {
			continue
		}
		// Never hash through a symlink.
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		entryPath := filepath.Join(dir, name)
		if entry.IsDir() {
			if err := h.hashTree(digest, entryPath, entryRel); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := hashFile(digest, entryPath, entryRel); err != nil {
			return err
		}
	}
	return nil
}

func hashFile(digest hash.Hash, path, rel string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	// Frame each record: NUL-terminate the path (paths cannot contain
	// NUL) and length-prefix the content, so path/content boundaries
	// are unambiguous and {"ab": "c"} never collides with {"a": "bc"}.
	if _, err := io.WriteString(digest, rel); err != nil {
		return errors.Wrap(err, "failed to hash path")
	}
	var frame [9]byte
	binary.BigEndian.PutUint64(frame[1:], uint64(info.Size()))
	digest.Write(frame[:])

	if _, err := io.Copy(digest, f); err != nil {
		return errors.Wrapf(err, "failed to hash %s", path)
	}
	return nil
}

func (h *Hasher) excluded(name, rel string) bool {
	for _, p := range h.excludes {
		if p == name || p == rel {
			return true
		}
		if strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	for _, g := range h.globs {
		if g.Match(name) || g.Match(rel) {
			return true
		}
	}
	return false
}

// ShortHash returns the first 12 characters of a hex digest, used as a
// human-readable fallback version for file sources.
func ShortHash(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}

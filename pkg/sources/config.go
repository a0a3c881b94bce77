// Package sources resolves configured capability sources: it normalizes
// source declarations, fetches Git and local directory sources into the
// project's capability tree, wraps content that lacks a descriptor, and
// records the resolved state in the lock file.
package sources

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Type discriminates the source config union.
type Type string

const (
	// TypeGit is a source fetched from a Git repository.
	TypeGit Type = "git"
	// TypeFile is a source copied from a local directory.
	TypeFile Type = "file"
)

// Config is a normalized source declaration. Exactly one variant applies:
// Git sources may carry a Version (ref, tag, or "latest") and a Path into
// a monorepo; file sources carry only the local directory path.
type Config struct {
	Type    Type
	Source  string // declared source, as written in omni.toml
	Version string // git only; empty or "latest" means the default branch
	Path    string // git only; subdirectory within the repository
}

// IsPinned reports whether a Git source names a concrete ref.
func (c *Config) IsPinned() bool {
	return c.Type == TypeGit && c.Version != "" && c.Version != "latest"
}

// CloneURL resolves the declared source to a git-cloneable URL.
func (c *Config) CloneURL() string {
	src := c.Source
	if rest, ok := strings.CutPrefix(src, "github:"); ok {
		return fmt.Sprintf("https://github.com/%s.git", rest)
	}
	return src
}

// LocalPath resolves a file source to its local directory path.
func (c *Config) LocalPath() string {
	return strings.TrimPrefix(c.Source, "file://")
}

// ParseSourceConfig normalizes a raw source declaration from omni.toml.
// Shorthand strings ("github:acme/pack", "https://...", "file:///...")
// and object form ({source, version, path}) are both accepted.
func ParseSourceConfig(id string, raw any) (*Config, error) {
	switch v := raw.(type) {
	case string:
		return parseShorthand(id, v, "", "")
	case map[string]any:
		source, _ := v["source"].(string)
		if source == "" {
			return nil, errors.Errorf("source %s: missing required field 'source'", id)
		}
		version, _ := v["version"].(string)
		path, _ := v["path"].(string)
		return parseShorthand(id, source, version, path)
	default:
		return nil, errors.Errorf("source %s: must be a string or a table, got %T", id, raw)
	}
}

func parseShorthand(id, source, version, path string) (*Config, error) {
	if strings.HasPrefix(source, "file://") {
		if version != "" || path != "" {
			return nil, errors.Errorf("source %s: 'version' and 'path' are only valid for git sources", id)
		}
		if strings.TrimPrefix(source, "file://") == "" {
			return nil, errors.Errorf("source %s: empty file path", id)
		}
		return &Config{Type: TypeFile, Source: source}, nil
	}

	if !isGitSource(source) {
		return nil, errors.Errorf("source %s: unrecognized source %q", id, source)
	}
	return &Config{Type: TypeGit, Source: source, Version: version, Path: path}, nil
}

// declaredSource returns the source string exactly as written in
// omni.toml, for recording in the lock file.
func declaredSource(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["source"].(string)
		return s
	default:
		return ""
	}
}

func isGitSource(source string) bool {
	for _, prefix := range []string{"github:", "https://", "http://", "git@", "ssh://", "git://"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

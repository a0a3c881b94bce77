// Package project reads the user-owned omni.toml configuration file.
// This package only ever reads the file; omni never rewrites user config.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/mcpcfg"
)

// FileName is the project configuration file at the project root.
const FileName = "omni.toml"

// Config is the parsed omni.toml.
type Config struct {
	Capabilities Capabilities             `toml:"capabilities"`
	Mcps         map[string]mcpcfg.Config `toml:"mcps"`
}

// Capabilities holds the [capabilities] table.
type Capabilities struct {
	// Sources maps capability id to a source declaration: a shorthand
	// string or a {source, version, path} table. Normalization happens
	// in the sources package.
	Sources map[string]any `toml:"sources"`
}

// Load reads omni.toml from the project root. A missing file yields an
// empty configuration; a malformed one is an error the caller surfaces.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", FileName)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", FileName)
	}
	return &cfg, nil
}

// SourceIDs returns the configured capability source ids, sorted.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Capabilities.Sources))
	for id := range c.Capabilities.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// McpIDs returns the configured MCP server ids, sorted.
func (c *Config) McpIDs() []string {
	ids := make([]string, 0, len(c.Mcps))
	for id := range c.Mcps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnabledIDs returns the full enabled capability set: configured sources
// plus MCP-derived pseudo-capabilities, sorted.
func (c *Config) EnabledIDs() []string {
	ids := append(c.SourceIDs(), c.McpIDs()...)
	sort.Strings(ids)
	return ids
}

// Validate checks ids and MCP records. Capability ids become directory
// names, so path separators and traversal are rejected, and an id used by
// both a source and an [mcps] entry is a collision.
func (c *Config) Validate() error {
	var result *multierror.Error

	for _, id := range c.SourceIDs() {
		if err := validateID(id); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "capability source %q", id))
		}
	}
	for _, id := range c.McpIDs() {
		if err := validateID(id); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "mcp server %q", id))
		}
		if _, collides := c.Capabilities.Sources[id]; collides {
			result = multierror.Append(result,
				errors.Errorf("id %q is declared both as a capability source and an mcp server", id))
		}
		if err := c.Mcps[id].Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "mcp server %q", id))
		}
	}

	return result.ErrorOrNil()
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id must not be empty")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return errors.New("id must not contain path separators")
	}
	return nil
}

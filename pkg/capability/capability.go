// Package capability defines the capability descriptor format and the
// wrapping machinery that synthesizes descriptors for fetched directories
// that ship recognizable content (skills, agents, commands, rules, docs)
// without a capability.toml of their own.
package capability

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// DescriptorFileName is the capability descriptor file at a capability root.
const DescriptorFileName = "capability.toml"

// PluginManifestPath is the Claude plugin manifest probed during wrap
// detection and version resolution, relative to the capability root.
const PluginManifestPath = ".claude-plugin/plugin.json"

// Descriptor is the parsed representation of capability.toml.
type Descriptor struct {
	Capability Spec `toml:"capability"`
}

// Spec holds the [capability] table.
type Spec struct {
	ID          string         `toml:"id"`
	Name        string         `toml:"name"`
	Version     string         `toml:"version,omitempty"`
	Description string         `toml:"description,omitempty"`
	Author      *Author        `toml:"author,omitempty"`
	Metadata    map[string]any `toml:"metadata,omitempty"`
}

// Author holds the optional [capability.author] table.
type Author struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// LoadDescriptor reads and parses capability.toml from a capability root.
func LoadDescriptor(dir string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", DescriptorFileName)
	}
	var desc Descriptor
	if err := toml.Unmarshal(data, &desc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", DescriptorFileName)
	}
	return &desc, nil
}

const generatedHeader = `# Generated by omni. Do not edit.
# This descriptor was synthesized because the source did not ship one.

`

// WriteDescriptor marshals desc and writes it as capability.toml under dir,
// prefixed with a machine-owned header. Values are emitted through a
// structured TOML encoder, so embedded quotes in names and descriptions
// are escaped correctly.
func WriteDescriptor(dir string, desc *Descriptor) error {
	data, err := toml.Marshal(desc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal capability descriptor")
	}
	path := filepath.Join(dir, DescriptorFileName)
	if err := os.WriteFile(path, append([]byte(generatedHeader), data...), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// MetadataBool reads a boolean metadata key, tolerating absence.
func (d *Descriptor) MetadataBool(key string) bool {
	if d == nil || d.Capability.Metadata == nil {
		return false
	}
	v, ok := d.Capability.Metadata[key].(bool)
	return ok && v
}

// IsGenerated reports whether the descriptor was synthesized by omni,
// either by wrapping fetched content or from an [mcps] entry.
func (d *Descriptor) IsGenerated() bool {
	return d.MetadataBool("wrapped") || d.MetadataBool("generated_from_omni_toml")
}

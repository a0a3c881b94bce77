package capability

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// folderAliases maps each canonical content directory to the legacy
// singular (or alternate) names it may appear under in hand-authored
// repositories. Order matters: the canonical name always wins.
var folderAliases = []struct {
	canonical string
	aliases   []string
}{
	{"skills", []string{"skill"}},
	{"agents", []string{"agent", "subagents", "subagent"}},
	{"commands", []string{"command"}},
	{"rules", []string{"rule"}},
	{"docs", []string{"doc", "documentation"}},
}

// markerFiles are the per-kind marker files that identify a content
// subdirectory (e.g. skills/foo/SKILL.md).
var markerFiles = map[string]string{
	"skills":   "SKILL.md",
	"agents":   "AGENT.md",
	"commands": "COMMAND.md",
}

// ContentEntry is one discovered skill, agent, or command.
type ContentEntry struct {
	Name     string
	Path     string
	IsFolder bool
}

// DiscoveredContent is the transient inventory of recognizable content
// found in a fetched directory. It is produced during wrap detection and
// never persisted.
type DiscoveredContent struct {
	Skills   []ContentEntry
	Agents   []ContentEntry
	Commands []ContentEntry
	RulesDir string
	DocsDir  string
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// firstExistingDir returns the first directory under root among the
// canonical name and its aliases, or "" when none exists.
func firstExistingDir(root, canonical string, aliases []string) string {
	for _, name := range append([]string{canonical}, aliases...) {
		path := filepath.Join(root, name)
		if dirExists(path) {
			return path
		}
	}
	return ""
}

// ShouldWrap reports whether dir needs a synthesized descriptor: it has
// no authored capability.toml but ships a plugin manifest or any
// recognized content directory. A descriptor omni itself generated on an
// earlier sync does not count as authored; the checkout of a Git source
// keeps it across fast-forwards, and treating it as authored would make
// later syncs read back omni's own stale version.
func ShouldWrap(dir string) bool {
	if hasAuthoredDescriptor(dir) {
		return false
	}
	if fileExists(filepath.Join(dir, filepath.FromSlash(PluginManifestPath))) {
		return true
	}
	for _, group := range folderAliases {
		if firstExistingDir(dir, group.canonical, group.aliases) != "" {
			return true
		}
	}
	return false
}

// hasAuthoredDescriptor reports whether dir ships a capability.toml that
// omni did not synthesize. A malformed descriptor counts as authored so
// that a user's broken file is never overwritten.
func hasAuthoredDescriptor(dir string) bool {
	if !fileExists(filepath.Join(dir, DescriptorFileName)) {
		return false
	}
	desc, err := LoadDescriptor(dir)
	if err != nil {
		return true
	}
	return !desc.IsGenerated()
}

// NormalizeFolderNames renames legacy singular content directories to
// their plural form. A rename only happens when the plural directory does
// not already exist; existing data is never overwritten or deleted.
func NormalizeFolderNames(dir string) error {
	for _, group := range folderAliases {
		canonicalPath := filepath.Join(dir, group.canonical)
		for _, alias := range group.aliases {
			aliasPath := filepath.Join(dir, alias)
			if !dirExists(aliasPath) {
				continue
			}
			if dirExists(canonicalPath) {
				continue
			}
			if err := os.Rename(aliasPath, canonicalPath); err != nil {
				return errors.Wrapf(err, "failed to rename %s to %s", aliasPath, canonicalPath)
			}
		}
	}
	return nil
}

// DiscoverContent inventories the recognized content of dir. Each content
// kind supports two layouts: a subdirectory containing the kind's marker
// file (skills/foo/SKILL.md), or a flat <name>.md file directly inside
// the kind's directory.
func DiscoverContent(dir string) (*DiscoveredContent, error) {
	dc := &DiscoveredContent{}

	for _, group := range folderAliases {
		contentDir := firstExistingDir(dir, group.canonical, group.aliases)
		if contentDir == "" {
			continue
		}
		switch group.canonical {
		case "rules":
			dc.RulesDir = contentDir
		case "docs":
			dc.DocsDir = contentDir
		default:
			entries, err := enumerateEntries(contentDir, markerFiles[group.canonical])
			if err != nil {
				return nil, err
			}
			switch group.canonical {
			case "skills":
				dc.Skills = entries
			case "agents":
				dc.Agents = entries
			case "commands":
				dc.Commands = entries
			}
		}
	}
	return dc, nil
}

func enumerateEntries(contentDir, marker string) ([]ContentEntry, error) {
	dirEntries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", contentDir)
	}

	var entries []ContentEntry
	for _, e := range dirEntries {
		path := filepath.Join(contentDir, e.Name())
		if e.IsDir() {
			if fileExists(filepath.Join(path, marker)) {
				entries = append(entries, ContentEntry{
					Name:     e.Name(),
					Path:     path,
					IsFolder: true,
				})
			}
			continue
		}
		if strings.HasSuffix(e.Name(), ".md") {
			entries = append(entries, ContentEntry{
				Name: strings.TrimSuffix(e.Name(), ".md"),
				Path: path,
			})
		}
	}
	return entries, nil
}

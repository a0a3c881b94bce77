package manifest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/logger"
)

// Providers are the materialized locations artifacts are written to.
type Providers struct {
	SkillsDir    string
	RulesDir     string
	CommandsDir  string
	SubagentsDir string
}

// CleanupResult lists what the reconciler deleted, per kind.
type CleanupResult struct {
	Skills    []string
	Rules     []string
	Commands  []string
	Subagents []string
}

// Empty reports whether nothing was deleted.
func (r *CleanupResult) Empty() bool {
	return len(r.Skills) == 0 && len(r.Rules) == 0 && len(r.Commands) == 0 && len(r.Subagents) == 0
}

// CleanupStaleResources deletes the artifacts of every capability present
// in the previous manifest but absent from the currently enabled set.
// Missing files are skipped silently. Capabilities still enabled are never
// touched, even if their content changed: regenerating current content is
// the caller's job, not the reconciler's. MCP entries are pruned through
// the separate .mcp.json sync, keyed the same way.
func CleanupStaleResources(ctx context.Context, previous *Manifest, currentIDs map[string]bool, p Providers) (*CleanupResult, error) {
	result := &CleanupResult{}

	for id, res := range previous.Capabilities {
		if currentIDs[id] {
			continue
		}
		log := logger.G(ctx).WithField("capability", id)

		for _, name := range res.Skills {
			if err := removeArtifact(p.SkillsDir, name); err != nil {
				return result, err
			}
			result.Skills = append(result.Skills, name)
		}
		for _, name := range res.Rules {
			if err := removeArtifact(p.RulesDir, name); err != nil {
				return result, err
			}
			result.Rules = append(result.Rules, name)
		}
		for _, name := range res.Commands {
			if err := removeArtifact(p.CommandsDir, name); err != nil {
				return result, err
			}
			result.Commands = append(result.Commands, name)
		}
		for _, name := range res.Subagents {
			if err := removeArtifact(p.SubagentsDir, name); err != nil {
				return result, err
			}
			result.Subagents = append(result.Subagents, name)
		}

		log.Info("removed artifacts of disabled capability")
	}

	return result, nil
}

// removeArtifact deletes one recorded artifact under its provider
// directory. The recorded name must stay inside the provider tree.
func removeArtifact(providerDir, name string) error {
	if providerDir == "" || name == "" {
		return nil
	}
	path := filepath.Join(providerDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(providerDir, path)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return errors.Errorf("artifact name %q escapes provider directory", name)
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	// Drop now-empty intermediate directories, but never the provider root.
	parent := filepath.Dir(path)
	for parent != filepath.Clean(providerDir) {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		if os.Remove(parent) != nil {
			break
		}
		parent = filepath.Dir(parent)
	}
	return nil
}

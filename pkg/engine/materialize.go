package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/capability"
	"github.com/omnihq/omni/pkg/logger"
	"github.com/omnihq/omni/pkg/manifest"
	"github.com/omnihq/omni/pkg/project"
)

// materialize copies one capability's content into the provider
// directories and returns the exact artifact names written. The manifest
// must record precisely what landed on disk; the reconciler's correctness
// depends on it.
func (e *Engine) materialize(ctx context.Context, c *Capability, cfg *project.Config) (manifest.Resources, []string) {
	res := manifest.Resources{}
	var warnings []string
	p := e.providers()

	for _, entry := range c.Content.Skills {
		name, err := e.placeSkill(p.SkillsDir, entry)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("capability %s: skill %s: %v", c.ID, entry.Name, err))
			continue
		}
		res.Skills = append(res.Skills, name)
	}

	if c.Content.RulesDir != "" {
		names, err := e.placeRules(p.RulesDir, c.ID, c.Content.RulesDir)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("capability %s: rules: %v", c.ID, err))
		}
		res.Rules = names
	}

	for _, entry := range c.Content.Commands {
		name, err := placeEntry(p.CommandsDir, entry)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("capability %s: command %s: %v", c.ID, entry.Name, err))
			continue
		}
		res.Commands = append(res.Commands, name)
	}

	for _, entry := range c.Content.Agents {
		name, err := placeEntry(p.SubagentsDir, entry)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("capability %s: agent %s: %v", c.ID, entry.Name, err))
			continue
		}
		res.Subagents = append(res.Subagents, name)
	}

	if _, isMcp := cfg.Mcps[c.ID]; isMcp {
		res.MCPs = append(res.MCPs, c.ID)
	}

	logger.G(ctx).WithField("capability", c.ID).WithField("skills", len(res.Skills)).Debug("materialized capability")
	return res, warnings
}

// placeSkill validates a folder skill's SKILL.md frontmatter before
// copying it; invalid skills are skipped rather than materialized broken.
func (e *Engine) placeSkill(skillsDir string, entry capability.ContentEntry) (string, error) {
	if entry.IsFolder {
		if _, err := capability.LoadSkillMeta(filepath.Join(entry.Path, capability.SkillMarkerFile)); err != nil {
			return "", err
		}
	}
	return placeEntry(skillsDir, entry)
}

// placeEntry copies one content entry into a provider directory and
// returns the on-disk artifact name.
func placeEntry(providerDir string, entry capability.ContentEntry) (string, error) {
	if err := os.MkdirAll(providerDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", providerDir)
	}

	if entry.IsFolder {
		dst := filepath.Join(providerDir, entry.Name)
		if err := os.RemoveAll(dst); err != nil {
			return "", errors.Wrapf(err, "failed to clear %s", dst)
		}
		if err := copyDir(entry.Path, dst); err != nil {
			return "", err
		}
		return entry.Name, nil
	}

	name := entry.Name + ".md"
	if err := copyFile(entry.Path, filepath.Join(providerDir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// placeRules copies a capability's rules directory into a per-capability
// subdirectory of the rules provider; recorded names are provider-relative
// paths like "acme/style.md".
func (e *Engine) placeRules(rulesDir, capID, srcDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", srcDir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		dst := filepath.Join(rulesDir, capID, entry.Name())
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return names, errors.Wrapf(err, "failed to create %s", filepath.Dir(dst))
		}
		if err := copyFile(filepath.Join(srcDir, entry.Name()), dst); err != nil {
			return names, err
		}
		names = append(names, capID+"/"+entry.Name())
	}
	return names, nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", src)
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return nil
}

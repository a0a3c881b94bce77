package capability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSkillMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SKILL.md")
	write(t, path, `---
name: deploy
description: Deploys the service
---

# Deploy

Instructions here.
`)

	sm, err := LoadSkillMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy", sm.Name)
	assert.Equal(t, "Deploys the service", sm.Description)
}

func TestLoadSkillMetaErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing frontmatter", func(t *testing.T) {
		path := filepath.Join(dir, "plain.md")
		write(t, path, "# Just markdown\n")
		_, err := LoadSkillMeta(path)
		assert.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		path := filepath.Join(dir, "unnamed.md")
		write(t, path, "---\ndescription: something\n---\nbody\n")
		_, err := LoadSkillMeta(path)
		assert.Error(t, err)
	})

	t.Run("missing description", func(t *testing.T) {
		path := filepath.Join(dir, "nodesc.md")
		write(t, path, "---\nname: something\n---\nbody\n")
		_, err := LoadSkillMeta(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSkillMeta(filepath.Join(dir, "absent.md"))
		assert.Error(t, err)
	})
}

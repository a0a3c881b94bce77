package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	m := New()
	m.Capabilities["acme"] = Resources{
		Skills:    []string{"deploy", "review"},
		Rules:     []string{"acme/style.md"},
		Commands:  []string{"lint.md"},
		Subagents: []string{"triage.md"},
		MCPs:      nil,
	}
	require.NoError(t, m.Save(path))

	got := Load(context.Background(), path)
	assert.Equal(t, CurrentVersion, got.Version)
	assert.False(t, got.SyncedAt.IsZero())
	assert.Equal(t, m.Capabilities, got.Capabilities)
}

func TestLoadMissingOrMalformed(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		m := Load(context.Background(), filepath.Join(t.TempDir(), FileName))
		require.NotNil(t, m)
		assert.Empty(t, m.Capabilities)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
		m := Load(context.Background(), path)
		require.NotNil(t, m)
		assert.Empty(t, m.Capabilities)
	})
}

func TestSameResources(t *testing.T) {
	a := New()
	a.Capabilities["x"] = Resources{Skills: []string{"s"}}

	b := New()
	b.Capabilities["x"] = Resources{Skills: []string{"s"}}
	assert.True(t, a.SameResources(b))

	b.Capabilities["x"] = Resources{Skills: []string{"s2"}}
	assert.False(t, a.SameResources(b))
}

func setupProviders(t *testing.T) Providers {
	t.Helper()
	root := t.TempDir()
	p := Providers{
		SkillsDir:    filepath.Join(root, "skills"),
		RulesDir:     filepath.Join(root, "rules"),
		CommandsDir:  filepath.Join(root, "commands"),
		SubagentsDir: filepath.Join(root, "agents"),
	}
	for _, dir := range []string{p.SkillsDir, p.RulesDir, p.CommandsDir, p.SubagentsDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return p
}

func materialize(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCleanupStaleResources(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes only stale ids", func(t *testing.T) {
		p := setupProviders(t)

		staleSkill := filepath.Join(p.SkillsDir, "foo")
		materialize(t, staleSkill, "SKILL.md", "stale")
		keptSkill := materialize(t, p.SkillsDir, "bar/SKILL.md", "kept content")
		staleRule := materialize(t, p.RulesDir, "old/style.md", "stale rule")

		prev := New()
		prev.Capabilities["old"] = Resources{Skills: []string{"foo"}, Rules: []string{"old/style.md"}}
		prev.Capabilities["new"] = Resources{Skills: []string{"bar"}}

		result, err := CleanupStaleResources(ctx, prev, map[string]bool{"new": true}, p)
		require.NoError(t, err)

		assert.Equal(t, []string{"foo"}, result.Skills)
		assert.Equal(t, []string{"old/style.md"}, result.Rules)
		assert.NoDirExists(t, staleSkill)
		assert.NoFileExists(t, staleRule)
		// Empty intermediate dir is pruned too.
		assert.NoDirExists(t, filepath.Join(p.RulesDir, "old"))

		// Still-enabled capability is byte-for-byte untouched.
		data, err := os.ReadFile(keptSkill)
		require.NoError(t, err)
		assert.Equal(t, "kept content", string(data))
	})

	t.Run("missing artifacts are skipped silently", func(t *testing.T) {
		p := setupProviders(t)
		prev := New()
		prev.Capabilities["ghost"] = Resources{Skills: []string{"never-materialized"}}

		result, err := CleanupStaleResources(ctx, prev, map[string]bool{}, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"never-materialized"}, result.Skills)
	})

	t.Run("rejects escaping names", func(t *testing.T) {
		p := setupProviders(t)
		outside := materialize(t, filepath.Dir(p.SkillsDir), "victim.txt", "safe")

		prev := New()
		prev.Capabilities["evil"] = Resources{Skills: []string{"../victim.txt"}}

		_, err := CleanupStaleResources(ctx, prev, map[string]bool{}, p)
		assert.Error(t, err)
		assert.FileExists(t, outside)
	})

	t.Run("empty previous manifest is a no-op", func(t *testing.T) {
		p := setupProviders(t)
		result, err := CleanupStaleResources(ctx, New(), map[string]bool{"x": true}, p)
		require.NoError(t, err)
		assert.True(t, result.Empty())
	})
}

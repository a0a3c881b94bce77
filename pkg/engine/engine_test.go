package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "omni.toml"), []byte(content), 0o644))
}

// makePack builds a local capability pack with one of each content kind.
func makePack(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, "skills/deploy/SKILL.md", "---\nname: deploy\ndescription: Deploys the service\n---\n\nSteps.\n")
	writeTree(t, src, "skills/deploy/scripts/run.sh", "#!/bin/sh\n")
	writeTree(t, src, "commands/lint.md", "Run the linter.")
	writeTree(t, src, "agents/triage.md", "Triage incoming issues.")
	writeTree(t, src, "rules/style.md", "Prefer table tests.")
	return src
}

func TestSyncMaterializesProviders(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makePack(t)
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	e := New(root)
	report, err := e.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, report.FetchErrors)
	assert.Empty(t, report.Warnings)

	assert.FileExists(t, filepath.Join(root, ".claude", "skills", "deploy", "SKILL.md"))
	assert.FileExists(t, filepath.Join(root, ".claude", "skills", "deploy", "scripts", "run.sh"))
	assert.FileExists(t, filepath.Join(root, ".claude", "commands", "lint.md"))
	assert.FileExists(t, filepath.Join(root, ".claude", "agents", "triage.md"))
	assert.FileExists(t, filepath.Join(root, ".claude", "rules", "acme", "style.md"))

	// The manifest records exactly what was materialized.
	data, err := os.ReadFile(filepath.Join(root, ".omni", "manifest.json"))
	require.NoError(t, err)
	var m struct {
		Capabilities map[string]struct {
			Skills    []string `json:"skills"`
			Rules     []string `json:"rules"`
			Commands  []string `json:"commands"`
			Subagents []string `json:"subagents"`
		} `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(data, &m))
	res, ok := m.Capabilities["acme"]
	require.True(t, ok)
	assert.Equal(t, []string{"deploy"}, res.Skills)
	assert.Equal(t, []string{"acme/style.md"}, res.Rules)
	assert.Equal(t, []string{"lint.md"}, res.Commands)
	assert.Equal(t, []string{"triage.md"}, res.Subagents)
}

func TestSyncRemovesDisabledCapabilityArtifacts(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makePack(t)
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	e := New(root)
	_, err := e.Sync(ctx)
	require.NoError(t, err)

	// Keep an artifact omni never wrote; cleanup must not touch it.
	userFile := filepath.Join(root, ".claude", "skills", "handwritten.md")
	require.NoError(t, os.WriteFile(userFile, []byte("mine"), 0o644))

	writeProjectConfig(t, root, "")
	report, err := e.Sync(ctx)
	require.NoError(t, err)

	require.NotNil(t, report.Cleanup)
	assert.Equal(t, []string{"deploy"}, report.Cleanup.Skills)
	assert.NoDirExists(t, filepath.Join(root, ".claude", "skills", "deploy"))
	assert.NoFileExists(t, filepath.Join(root, ".claude", "commands", "lint.md"))
	assert.NoFileExists(t, filepath.Join(root, ".claude", "rules", "acme", "style.md"))
	assert.FileExists(t, userFile)
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makePack(t)
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	e := New(root)
	_, err := e.Sync(ctx)
	require.NoError(t, err)

	manifestPath := filepath.Join(root, ".omni", "manifest.json")
	before, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	report, err := e.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, report.Fetched, 1)
	assert.False(t, report.Fetched[0].Updated)

	after, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "unchanged syncs must not rewrite the manifest")
}

func TestSyncManagesMcpJSON(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeProjectConfig(t, root, "[mcps.ctx7]\ncommand = \"npx\"\nargs = [\"-y\", \"context7\"]\n")

	e := New(root)
	_, err := e.Sync(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".mcp.json"))
	require.NoError(t, err)
	var doc struct {
		McpServers map[string]struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		} `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc.McpServers, "ctx7")
	assert.Equal(t, "npx", doc.McpServers["ctx7"].Command)

	// The pseudo-capability materialized under the state directory.
	assert.FileExists(t, filepath.Join(root, ".omni", "capabilities", "ctx7", "capability.toml"))

	// Removing the entry prunes both the .mcp.json entry and the
	// generated capability directory.
	writeProjectConfig(t, root, "")
	_, err = e.Sync(ctx)
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(root, ".mcp.json"))
	require.NoError(t, err)
	// json.Unmarshal merges into a populated map; start fresh.
	doc.McpServers = nil
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotContains(t, doc.McpServers, "ctx7")
	assert.NoDirExists(t, filepath.Join(root, ".omni", "capabilities", "ctx7"))
}

func TestSyncNeverCreatesMcpJSONUnprompted(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makePack(t)
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	_, err := New(root).Sync(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, ".mcp.json"))
}

func TestSyncPreservesForeignMcpEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeProjectConfig(t, root, "[mcps.ctx7]\ncommand = \"npx\"\n")

	// A hand-managed server already present in .mcp.json.
	existing := `{"mcpServers": {"hand-rolled": {"command": "custom", "note": "keep me"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mcp.json"), []byte(existing), 0o644))

	_, err := New(root).Sync(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".mcp.json"))
	require.NoError(t, err)
	var doc struct {
		McpServers map[string]json.RawMessage `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.McpServers, "hand-rolled")
	assert.Contains(t, string(doc.McpServers["hand-rolled"]), "keep me")
	assert.Contains(t, doc.McpServers, "ctx7")
}

func TestSyncSkipsInvalidSkill(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := t.TempDir()
	// Folder skill whose SKILL.md lacks the required frontmatter.
	writeTree(t, src, "skills/broken/SKILL.md", "no frontmatter here")
	writeTree(t, src, "commands/ok.md", "fine")
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	report, err := New(root).Sync(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Warnings)
	assert.NoDirExists(t, filepath.Join(root, ".claude", "skills", "broken"))
	assert.FileExists(t, filepath.Join(root, ".claude", "commands", "ok.md"))
}

func TestSyncRejectsInvalidConfig(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root,
		"[capabilities.sources]\nshared = \"github:acme/pack\"\n\n[mcps.shared]\ncommand = \"npx\"\n")

	_, err := New(root).Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared")
}

type stubHookLoader struct {
	loaded []string
	ran    []string
}

func (s *stubHookLoader) Load(c *Capability) (*Hooks, error) {
	s.loaded = append(s.loaded, c.ID)
	id := c.ID
	return &Hooks{Sync: func(ctx context.Context) error {
		s.ran = append(s.ran, id)
		return nil
	}}, nil
}

func TestSyncRunsCapabilityHooks(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makePack(t)
	writeProjectConfig(t, root, fmt.Sprintf("[capabilities.sources]\nacme = \"file://%s\"\n", src))

	loader := &stubHookLoader{}
	e := New(root, WithHookLoader(loader))
	report, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, []string{"acme"}, loader.loaded)
	assert.Equal(t, []string{"acme"}, loader.ran)
}

package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnihq/omni/pkg/capability"
	"github.com/omnihq/omni/pkg/lockfile"
	"github.com/omnihq/omni/pkg/mcpcfg"
	"github.com/omnihq/omni/pkg/project"
)

func sourceConfig(sources map[string]any) *project.Config {
	return &project.Config{Capabilities: project.Capabilities{Sources: sources}}
}

func makeSkillPack(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, src, "skills/deploy/SKILL.md", "---\nname: deploy\ndescription: Deploys the service\n---\n\nSteps.\n")
	writeFile(t, src, "commands/lint.md", "Run the linter.")
	return src
}

func TestSyncAllWrapsFileSource(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makeSkillPack(t)

	o := NewOrchestrator(root)
	cfg := sourceConfig(map[string]any{"acme": "file://" + src})

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, batch.FetchErrors)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.True(t, res.Updated)
	assert.True(t, res.Wrapped)
	assert.Equal(t, capability.VersionSourceContentHash, res.VersionSource)
	assert.Len(t, res.Version, 12)

	// The wrap pass synthesized a descriptor describing the content.
	desc, err := capability.LoadDescriptor(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "acme", desc.Capability.ID)
	assert.Contains(t, desc.Capability.Description, "1 skill")
	assert.Contains(t, desc.Capability.Description, "1 command")

	lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
	entry, ok := lf.Capabilities["acme"]
	require.True(t, ok)
	assert.Equal(t, "file://"+src, entry.Source)
	assert.Equal(t, res.ContentHash, entry.ContentHash)
	assert.False(t, entry.UpdatedAt.IsZero())
}

func TestSyncAllSecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makeSkillPack(t)

	o := NewOrchestrator(root)
	cfg := sourceConfig(map[string]any{"acme": "file://" + src})

	_, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)

	lockPath := filepath.Join(root, lockfile.FileName)
	before, err := os.ReadFile(lockPath)
	require.NoError(t, err)

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.False(t, batch.Results[0].Updated)

	// Nothing changed, so the lock file is not rewritten.
	after, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSyncAllGitSourceWithDescriptor(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	fake := &fakeGit{
		t:    t,
		head: commitA,
		files: map[string]string{
			"capability.toml": "[capability]\nid = \"acme\"\nname = \"Acme\"\nversion = \"3.1.4\"\n",
			"skills/a.md":     "a",
		},
	}
	o := NewOrchestrator(root, WithRunner(fake))
	cfg := sourceConfig(map[string]any{
		"acme": map[string]any{"source": "github:acme/pack", "version": "v1.2.0"},
	})

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, batch.FetchErrors)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.False(t, res.Wrapped, "a source shipping its own descriptor is not wrapped")
	assert.Equal(t, "3.1.4", res.Version)
	assert.Equal(t, capability.VersionSourceCapabilityToml, res.VersionSource)

	lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
	entry := lf.Capabilities["acme"]
	assert.Equal(t, commitA, entry.Commit)
	assert.Equal(t, "v1.2.0", entry.PinnedVersion)
}

func TestSyncAllWrapsGitSubdirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	fake := &fakeGit{
		t:    t,
		head: commitA,
		files: map[string]string{
			"plugins/foo/skills/deploy/SKILL.md": "---\nname: deploy\ndescription: Deploys\n---\n",
			"README.md":                          "monorepo root",
		},
	}
	o := NewOrchestrator(root, WithRunner(fake))
	cfg := sourceConfig(map[string]any{
		"foo": map[string]any{"source": "github:acme/pack", "path": "plugins/foo"},
	})

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, batch.FetchErrors)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.True(t, res.Wrapped)
	assert.Equal(t, capability.VersionSourceCommit, res.VersionSource)
	assert.Equal(t, commitA[:7], res.Version)

	desc, err := capability.LoadDescriptor(res.Path)
	require.NoError(t, err)
	assert.Contains(t, desc.Capability.Description, "1 skill")
}

func TestSyncAllRewrapsAfterGitFastForward(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	fake := &fakeGit{
		t:     t,
		head:  commitA,
		files: map[string]string{"skills/deploy.md": "deploy"},
	}
	o := NewOrchestrator(root, WithRunner(fake))
	cfg := sourceConfig(map[string]any{"acme": "github:acme/pack"})

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, shortCommit(commitA), batch.Results[0].Version)

	// Upstream moves. The checkout fast-forwards but keeps the
	// descriptor synthesized on the first sync; the fresh commit must
	// win over the stale generated version.
	fake.refs = map[string]string{"origin/HEAD": commitB}
	fake.pullTo = commitB

	batch, err = o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)

	res := batch.Results[0]
	assert.True(t, res.Updated)
	assert.True(t, res.Wrapped)
	assert.Equal(t, shortCommit(commitB), res.Version)
	assert.Equal(t, capability.VersionSourceCommit, res.VersionSource)
	assert.Empty(t, batch.Warnings)

	lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
	entry := lf.Capabilities["acme"]
	assert.Equal(t, commitB, entry.Commit)
	assert.Equal(t, shortCommit(commitB), entry.Version)
	assert.Equal(t, capability.VersionSourceCommit, entry.VersionSource)

	// A further update must not trip the version-mismatch warning:
	// hash-sourced versions move with the commit by design.
	fake.refs["origin/HEAD"] = commitC
	fake.pullTo = commitC

	batch, err = o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, shortCommit(commitC), batch.Results[0].Version)
	assert.Empty(t, batch.Warnings)
}

func TestSyncAllContinuesAfterSourceFailure(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makeSkillPack(t)

	o := NewOrchestrator(root)
	cfg := sourceConfig(map[string]any{
		"bad":  "file://" + filepath.Join(root, "does-not-exist"),
		"good": "file://" + src,
	})

	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err, "per-source failures must not abort the batch")

	require.Len(t, batch.Results, 1)
	assert.Equal(t, "good", batch.Results[0].ID)
	require.Error(t, batch.FetchErrors)
	assert.Contains(t, batch.FetchErrors.Error(), "bad")

	lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
	_, hasGood := lf.Capabilities["good"]
	_, hasBad := lf.Capabilities["bad"]
	assert.True(t, hasGood)
	assert.False(t, hasBad, "failed sources never enter the lock file")
}

func TestSyncAllRemovesStaleLockEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makeSkillPack(t)

	o := NewOrchestrator(root)
	_, err := o.SyncAll(ctx, sourceConfig(map[string]any{"acme": "file://" + src}))
	require.NoError(t, err)

	_, err = o.SyncAll(ctx, sourceConfig(nil))
	require.NoError(t, err)

	lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
	assert.Empty(t, lf.Capabilities)
}

func TestSyncAllMcpPseudoCapabilities(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	cfg := &project.Config{
		Mcps: map[string]mcpcfg.Config{
			"ctx7": {Command: "npx", Args: []string{"-y", "context7"}},
		},
	}

	o := NewOrchestrator(root)
	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, batch.FetchErrors)

	dir := filepath.Join(o.CapabilitiesDir(), "ctx7")
	desc, err := capability.LoadDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, "ctx7", desc.Capability.ID)
	assert.True(t, desc.IsGenerated())

	// Removing the entry prunes the generated directory, even with an
	// otherwise empty configuration.
	_, err = o.SyncAll(ctx, &project.Config{})
	require.NoError(t, err)
	assert.NoDirExists(t, dir)
}

func TestSyncAllNeverPrunesRealCapabilities(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := makeSkillPack(t)

	o := NewOrchestrator(root)
	_, err := o.SyncAll(ctx, sourceConfig(map[string]any{"acme": "file://" + src}))
	require.NoError(t, err)

	// acme disappears from the config; its wrapped descriptor is
	// generated but not MCP-generated, so the directory survives.
	_, err = o.SyncAll(ctx, &project.Config{})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(o.CapabilitiesDir(), "acme"))
}

func TestSyncAllInvalidMcpIsReported(t *testing.T) {
	ctx := context.Background()

	cfg := &project.Config{
		Mcps: map[string]mcpcfg.Config{
			"broken": {Transport: mcpcfg.TransportHTTP}, // no URL
		},
	}

	o := NewOrchestrator(t.TempDir())
	batch, err := o.SyncAll(ctx, cfg)
	require.NoError(t, err)
	require.Error(t, batch.FetchErrors)
	assert.Contains(t, batch.FetchErrors.Error(), "broken")
}

package sources

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/capability"
	"github.com/omnihq/omni/pkg/hashdir"
	"github.com/omnihq/omni/pkg/lockfile"
	"github.com/omnihq/omni/pkg/logger"
	"github.com/omnihq/omni/pkg/mcpcfg"
	"github.com/omnihq/omni/pkg/project"
)

// Orchestrator drives a full source sync batch: it synthesizes MCP
// pseudo-capabilities, fetches every configured source sequentially, wraps
// content that lacks a descriptor, resolves versions, and commits the lock
// file once at the end. Per-source failures are logged and aggregated; a
// batch always runs to completion.
type Orchestrator struct {
	root     string
	capsDir  string
	lockPath string
	git      *GitFetcher
	file     *FileFetcher
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRunner substitutes the command runner used for git operations.
func WithRunner(r CommandRunner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.git = NewGitFetcher(r)
	}
}

// WithCapabilitiesDir overrides where capabilities materialize.
func WithCapabilitiesDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.capsDir = dir
	}
}

// NewOrchestrator creates an Orchestrator rooted at the given project
// directory. Capabilities materialize under <root>/.omni/capabilities/<id>
// and the lock file lives at <root>/omni.lock.toml.
func NewOrchestrator(root string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		root:     root,
		capsDir:  filepath.Join(root, ".omni", "capabilities"),
		lockPath: filepath.Join(root, lockfile.FileName),
		git:      NewGitFetcher(nil),
		file:     NewFileFetcher(hashdir.New()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CapabilitiesDir returns the directory capabilities materialize under.
func (o *Orchestrator) CapabilitiesDir() string { return o.capsDir }

// Git returns the git fetcher, which also resolves HEAD commits for
// integrity checks.
func (o *Orchestrator) Git() *GitFetcher { return o.git }

// Hasher returns the tree hasher used for file sources.
func (o *Orchestrator) Hasher() *hashdir.Hasher { return o.file.Hasher() }

// BatchResult is the outcome of one sync batch.
type BatchResult struct {
	// Results holds one entry per successfully fetched source.
	Results []*FetchResult
	// Warnings holds advisory messages (version mismatches, skipped
	// entries). They never fail the batch.
	Warnings []string
	// FetchErrors aggregates per-source failures. The batch still
	// completed; callers report these individually.
	FetchErrors error
}

// SyncAll runs a full batch over the project configuration. The returned
// error is fatal (lock file write failure); per-source failures are in
// BatchResult.FetchErrors.
func (o *Orchestrator) SyncAll(ctx context.Context, cfg *project.Config) (*BatchResult, error) {
	result := &BatchResult{}
	var fetchErrs *multierror.Error

	lf := lockfile.Load(ctx, o.lockPath)
	dirty := false

	o.syncMcpCapabilities(ctx, cfg, result, &fetchErrs)

	for _, id := range cfg.SourceIDs() {
		res, warnings, err := o.syncSource(ctx, lf, id, cfg.Capabilities.Sources[id])
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("capability", id).Warn("failed to fetch source")
			fetchErrs = multierror.Append(fetchErrs, errors.Wrap(err, id))
			continue
		}
		result.Results = append(result.Results, res)

		prev, existed := lf.Capabilities[id]
		entry := o.lockEntry(cfg.Capabilities.Sources[id], prev, res)
		if !existed || !prev.SameRevision(entry) {
			dirty = true
		}
		lf.Capabilities[id] = entry
	}

	// Entries for sources no longer configured leave the lock file.
	configured := map[string]bool{}
	for _, id := range cfg.SourceIDs() {
		configured[id] = true
	}
	for id := range lf.Capabilities {
		if !configured[id] {
			delete(lf.Capabilities, id)
			dirty = true
		}
	}

	if dirty {
		if err := lf.Save(o.lockPath); err != nil {
			return nil, err
		}
		logger.G(ctx).WithField("path", o.lockPath).Debug("lock file updated")
	}

	result.FetchErrors = fetchErrs.ErrorOrNil()
	return result, nil
}

// syncSource fetches one source and runs the post-fetch pipeline: wrap
// detection, folder normalization, descriptor generation, and version
// resolution.
func (o *Orchestrator) syncSource(ctx context.Context, lf *lockfile.LockFile, id string, raw any) (*FetchResult, []string, error) {
	cfg, err := ParseSourceConfig(id, raw)
	if err != nil {
		return nil, nil, err
	}

	target := filepath.Join(o.capsDir, id)
	prev := lf.Capabilities[id]

	var res *FetchResult
	switch cfg.Type {
	case TypeGit:
		res, err = o.git.Fetch(ctx, id, cfg, target, prev.Commit)
	case TypeFile:
		res, err = o.file.Fetch(ctx, id, cfg, target, prev.ContentHash)
	default:
		err = errors.Errorf("unknown source type %q", cfg.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	fallback, fallbackSource := o.versionFallback(res)

	if capability.ShouldWrap(res.Path) {
		if err := capability.NormalizeFolderNames(res.Path); err != nil {
			return nil, nil, err
		}
		dc, err := capability.DiscoverContent(res.Path)
		if err != nil {
			return nil, nil, err
		}
		version, vsrc := capability.DetectVersion(res.Path, fallback, fallbackSource)
		desc := capability.GenerateDescriptor(id, version, dc, res.Path, capability.Provenance{
			Repository:  gitRepository(cfg),
			Commit:      res.Commit,
			SourcePath:  fileSourcePath(cfg),
			ContentHash: res.ContentHash,
		})
		if err := capability.WriteDescriptor(res.Path, desc); err != nil {
			return nil, nil, err
		}
		res.Wrapped = true
		res.Version, res.VersionSource = version, vsrc
	} else {
		res.Version, res.VersionSource = capability.DetectVersion(res.Path, fallback, fallbackSource)
	}

	var warnings []string
	if w := lockfile.CheckVersionMismatch(id, prev, res.Commit, res.Version); w != "" {
		warnings = append(warnings, w)
	}
	return res, warnings, nil
}

func (o *Orchestrator) versionFallback(res *FetchResult) (string, string) {
	if res.Commit != "" {
		return shortCommit(res.Commit), capability.VersionSourceCommit
	}
	return hashdir.ShortHash(res.ContentHash), capability.VersionSourceContentHash
}

func (o *Orchestrator) lockEntry(raw any, prev lockfile.Entry, res *FetchResult) lockfile.Entry {
	entry := lockfile.Entry{
		Source:        declaredSource(raw),
		Version:       res.Version,
		VersionSource: res.VersionSource,
		Commit:        res.Commit,
		ContentHash:   res.ContentHash,
		UpdatedAt:     prev.UpdatedAt,
	}
	if cfg, err := ParseSourceConfig(res.ID, raw); err == nil && cfg.IsPinned() {
		entry.PinnedVersion = cfg.Version
	}
	if !prev.SameRevision(entry) || prev.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	return entry
}

// syncMcpCapabilities synthesizes one pseudo-capability per [mcps] entry
// and prunes previously generated ones whose id disappeared. Pruning runs
// even when the [mcps] table is now empty or absent.
func (o *Orchestrator) syncMcpCapabilities(ctx context.Context, cfg *project.Config, result *BatchResult, fetchErrs **multierror.Error) {
	for _, id := range cfg.McpIDs() {
		mc := cfg.Mcps[id]
		if err := mc.Validate(); err != nil {
			logger.G(ctx).WithError(err).WithField("mcp", id).Warn("skipping invalid mcp server")
			*fetchErrs = multierror.Append(*fetchErrs, errors.Wrap(err, id))
			continue
		}
		if err := o.writeMcpCapability(id, mc); err != nil {
			*fetchErrs = multierror.Append(*fetchErrs, errors.Wrap(err, id))
			continue
		}
	}
	o.pruneMcpCapabilities(ctx, cfg)
}

func (o *Orchestrator) writeMcpCapability(id string, mc mcpcfg.Config) error {
	dir := filepath.Join(o.capsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	desc := &capability.Descriptor{
		Capability: capability.Spec{
			ID:          id,
			Name:        id,
			Description: mc.Describe(),
			Metadata:    map[string]any{"generated_from_omni_toml": true},
		},
	}
	return capability.WriteDescriptor(dir, desc)
}

func (o *Orchestrator) pruneMcpCapabilities(ctx context.Context, cfg *project.Config) {
	entries, err := os.ReadDir(o.capsDir)
	if err != nil {
		return
	}
	current := map[string]bool{}
	for _, id := range cfg.McpIDs() {
		current[id] = true
	}
	for _, entry := range entries {
		if !entry.IsDir() || current[entry.Name()] {
			continue
		}
		dir := filepath.Join(o.capsDir, entry.Name())
		desc, err := capability.LoadDescriptor(dir)
		if err != nil || !desc.MetadataBool("generated_from_omni_toml") {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.G(ctx).WithError(err).WithField("capability", entry.Name()).Warn("failed to prune generated mcp capability")
			continue
		}
		logger.G(ctx).WithField("capability", entry.Name()).Info("pruned generated mcp capability")
	}
}

func gitRepository(cfg *Config) string {
	if cfg.Type == TypeGit {
		return cfg.CloneURL()
	}
	return ""
}

func fileSourcePath(cfg *Config) string {
	if cfg.Type == TypeFile {
		return cfg.LocalPath()
	}
	return ""
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

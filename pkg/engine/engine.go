// Package engine drives a full omni sync: it loads the project
// configuration, fetches every source through the orchestrator,
// materializes capability content into the provider directories, and
// reconciles artifacts of capabilities that are no longer enabled.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/capability"
	"github.com/omnihq/omni/pkg/logger"
	"github.com/omnihq/omni/pkg/manifest"
	"github.com/omnihq/omni/pkg/mcpcfg"
	"github.com/omnihq/omni/pkg/project"
	"github.com/omnihq/omni/pkg/sources"
)

// Capability is a loaded, materializable capability.
type Capability struct {
	ID         string
	Dir        string
	Descriptor *capability.Descriptor
	Content    *capability.DiscoveredContent
}

// Hooks is the narrow plugin port a capability may expose. Hook loading
// is injected so the engine never executes arbitrary code on its own.
type Hooks struct {
	Sync func(ctx context.Context) error
}

// HookLoader resolves optional hooks for a capability.
type HookLoader interface {
	Load(c *Capability) (*Hooks, error)
}

// Engine runs sync batches for one project root.
type Engine struct {
	root       string
	orch       *sources.Orchestrator
	hookLoader HookLoader
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner substitutes the command runner used for git operations.
func WithRunner(r sources.CommandRunner) Option {
	return func(e *Engine) {
		e.orch = sources.NewOrchestrator(e.root, sources.WithRunner(r))
	}
}

// WithHookLoader injects the capability hook loader.
func WithHookLoader(l HookLoader) Option {
	return func(e *Engine) {
		e.hookLoader = l
	}
}

// New creates an Engine rooted at the given project directory. All paths
// derive from root; the engine never consults the process working
// directory.
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root: root,
		orch: sources.NewOrchestrator(root),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) manifestPath() string {
	return filepath.Join(e.root, ".omni", manifest.FileName)
}

func (e *Engine) mcpJSONPath() string {
	return filepath.Join(e.root, ".mcp.json")
}

func (e *Engine) providers() manifest.Providers {
	claude := filepath.Join(e.root, ".claude")
	return manifest.Providers{
		SkillsDir:    filepath.Join(claude, "skills"),
		RulesDir:     filepath.Join(claude, "rules"),
		CommandsDir:  filepath.Join(claude, "commands"),
		SubagentsDir: filepath.Join(claude, "agents"),
	}
}

// Report summarizes one sync batch.
type Report struct {
	Fetched     []*sources.FetchResult
	Warnings    []string
	Cleanup     *manifest.CleanupResult
	FetchErrors error
}

// Sync runs one full batch. The returned error is fatal (config, lock, or
// manifest write failure); per-source fetch failures are reported in the
// Report and do not abort the batch.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	cfg, err := project.Load(e.root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	batch, err := e.orch.SyncAll(ctx, cfg)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Fetched:     batch.Results,
		Warnings:    batch.Warnings,
		FetchErrors: batch.FetchErrors,
	}

	caps := e.loadCapabilities(ctx, cfg)
	prev := manifest.Load(ctx, e.manifestPath())

	next := manifest.New()
	for _, c := range caps {
		res, warnings := e.materialize(ctx, c, cfg)
		report.Warnings = append(report.Warnings, warnings...)
		next.Capabilities[c.ID] = res
	}

	e.runHooks(ctx, caps, report)

	enabled := map[string]bool{}
	for _, id := range cfg.EnabledIDs() {
		enabled[id] = true
	}
	cleanup, err := manifest.CleanupStaleResources(ctx, prev, enabled, e.providers())
	if err != nil {
		return nil, err
	}
	report.Cleanup = cleanup

	if err := e.syncMcpJSON(cfg, prev); err != nil {
		return nil, err
	}

	if !prev.SameResources(next) {
		if err := next.Save(e.manifestPath()); err != nil {
			return nil, err
		}
		logger.G(ctx).WithField("path", e.manifestPath()).Debug("manifest updated")
	}

	return report, nil
}

// loadCapabilities reads the materialized capability tree for every
// enabled id. Ids whose fetch failed on a fresh install have no directory
// yet and are skipped; they will materialize on a later successful sync.
func (e *Engine) loadCapabilities(ctx context.Context, cfg *project.Config) []*Capability {
	var caps []*Capability
	for _, id := range cfg.EnabledIDs() {
		dir := filepath.Join(e.orch.CapabilitiesDir(), id)
		desc, err := capability.LoadDescriptor(dir)
		if err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				logger.G(ctx).WithError(err).WithField("capability", id).Warn("unreadable capability descriptor")
			}
			continue
		}
		content, err := capability.DiscoverContent(dir)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("capability", id).Warn("failed to discover capability content")
			continue
		}
		caps = append(caps, &Capability{ID: id, Dir: dir, Descriptor: desc, Content: content})
	}
	return caps
}

func (e *Engine) runHooks(ctx context.Context, caps []*Capability, report *Report) {
	if e.hookLoader == nil {
		return
	}
	for _, c := range caps {
		h, err := e.hookLoader.Load(c)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("capability %s: hook load failed: %v", c.ID, err))
			continue
		}
		if h == nil || h.Sync == nil {
			continue
		}
		if err := h.Sync(ctx); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("capability %s: sync hook failed: %v", c.ID, err))
		}
	}
}

// syncMcpJSON rewrites the managed entries of .mcp.json. It is skipped
// entirely when no MCP server is configured now and none was before, so
// omni never creates the file unprompted.
func (e *Engine) syncMcpJSON(cfg *project.Config, prev *manifest.Manifest) error {
	var previousIDs []string
	for _, res := range prev.Capabilities {
		previousIDs = append(previousIDs, res.MCPs...)
	}
	if len(cfg.Mcps) == 0 && len(previousIDs) == 0 {
		return nil
	}
	_, err := mcpcfg.SyncMcpJSON(e.mcpJSONPath(), cfg.Mcps, previousIDs)
	return err
}

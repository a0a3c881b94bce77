package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omnihq/omni/pkg/lockfile"
	"github.com/omnihq/omni/pkg/presenter"
	"github.com/omnihq/omni/pkg/project"
	"github.com/omnihq/omni/pkg/sources"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed state of every configured capability",
	Long: `Status compares omni.toml against omni.lock.toml and reports drift:
capabilities that are configured but not installed, lock entries whose
source is no longer configured, and pin changes that a sync would apply.

With --verify, status also recomputes each capability's commit or
content hash and reports local modifications. Verification is advisory
and never changes anything on disk.`,
	Run: func(cmd *cobra.Command, args []string) {
		root, err := projectRoot()
		if err != nil {
			presenter.Error(err, "Failed to resolve project root")
			os.Exit(1)
		}
		verify, _ := cmd.Flags().GetBool("verify")

		cfg, err := project.Load(root)
		if err != nil {
			presenter.Error(err, "Failed to load omni.toml")
			os.Exit(1)
		}

		ctx := cmd.Context()
		lf := lockfile.Load(ctx, filepath.Join(root, lockfile.FileName))
		orch := sources.NewOrchestrator(root)
		drift := false

		presenter.Section("Capabilities")
		for _, id := range cfg.SourceIDs() {
			entry, installed := lf.Capabilities[id]
			if !installed {
				presenter.Warning(fmt.Sprintf("%s: not installed (run omni sync)", id))
				drift = true
				continue
			}

			if scfg, err := sources.ParseSourceConfig(id, cfg.Capabilities.Sources[id]); err == nil &&
				scfg.IsPinned() && scfg.Version != entry.PinnedVersion {
				presenter.Warning(fmt.Sprintf("%s: pinned to %s but %s is installed (run omni sync)",
					id, scfg.Version, entry.Version))
				drift = true
				continue
			}

			line := fmt.Sprintf("%s %s (%s)", id, entry.Version, entry.VersionSource)
			if verify {
				dir := filepath.Join(orch.CapabilitiesDir(), id)
				if msg := lockfile.VerifyIntegrity(ctx, id, entry, dir, orch.Git(), orch.Hasher()); msg != "" {
					presenter.Warning(msg)
					drift = true
					continue
				}
			}
			presenter.Success(line)
		}

		for _, id := range cfg.McpIDs() {
			presenter.Success(fmt.Sprintf("%s (mcp server, %s)", id, cfg.Mcps[id].EffectiveTransport()))
		}

		for id := range lf.Capabilities {
			if _, ok := cfg.Capabilities.Sources[id]; !ok {
				presenter.Warning(fmt.Sprintf("%s: locked but no longer configured (run omni sync)", id))
				drift = true
			}
		}

		if drift {
			os.Exit(1)
		}
	},
}

func init() {
	statusCmd.Flags().Bool("verify", false, "Recompute commits and content hashes to detect local modifications")
}

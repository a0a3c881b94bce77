package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnihq/omni/pkg/engine"
	"github.com/omnihq/omni/pkg/presenter"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch all configured capabilities and materialize their content",
	Long: `Sync fetches every source declared in omni.toml, wraps content that
ships without a descriptor, writes omni.lock.toml, and materializes
skills, rules, commands, and agents into the provider directories.

Per-source failures are reported individually and do not abort the
batch; sync exits non-zero when any source failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		root, err := projectRoot()
		if err != nil {
			presenter.Error(err, "Failed to resolve project root")
			os.Exit(1)
		}

		report, err := engine.New(root).Sync(cmd.Context())
		if err != nil {
			presenter.Error(err, "Sync failed")
			os.Exit(1)
		}

		printReport(report)
		if report.FetchErrors != nil {
			os.Exit(1)
		}
	},
}

func printReport(report *engine.Report) {
	for _, res := range report.Fetched {
		state := "up to date"
		if res.Updated {
			state = "updated"
		}
		if res.Wrapped {
			state += ", wrapped"
		}
		presenter.Success(fmt.Sprintf("%s %s (%s)", res.ID, res.Version, state))
	}

	if report.Cleanup != nil && !report.Cleanup.Empty() {
		removed := len(report.Cleanup.Skills) + len(report.Cleanup.Rules) +
			len(report.Cleanup.Commands) + len(report.Cleanup.Subagents)
		presenter.Info(fmt.Sprintf("Removed %d artifacts of disabled capabilities", removed))
	}

	for _, w := range report.Warnings {
		presenter.Warning(w)
	}
	if report.FetchErrors != nil {
		presenter.Error(report.FetchErrors, "Some sources failed to sync")
	}
}

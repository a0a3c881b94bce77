package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/omnihq/omni/pkg/engine"
	"github.com/omnihq/omni/pkg/logger"
	"github.com/omnihq/omni/pkg/presenter"
	"github.com/omnihq/omni/pkg/project"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-sync automatically whenever omni.toml changes",
	Long: `Watch runs an initial sync, then monitors omni.toml and re-syncs on
every change. Editor save patterns (write, rename, create) are all
handled, and rapid successive writes are debounced.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		root, err := projectRoot()
		if err != nil {
			presenter.Error(err, "Failed to resolve project root")
			os.Exit(1)
		}
		debounce, _ := cmd.Flags().GetInt("debounce")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Cancellation requested, shutting down...")
			cancel()
		}()

		e := engine.New(root)
		runSync(ctx, e)

		// Watch the directory, not the file: editors replace omni.toml
		// by rename, which drops a file-level watch.
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			presenter.Error(err, "Failed to create file watcher")
			os.Exit(1)
		}
		defer watcher.Close()
		if err := watcher.Add(root); err != nil {
			presenter.Error(err, "Failed to watch project root")
			os.Exit(1)
		}

		presenter.Info("Watching omni.toml for changes (ctrl-c to stop)")
		watchLoop(ctx, e, watcher, time.Duration(debounce)*time.Millisecond)
	},
}

func watchLoop(ctx context.Context, e *engine.Engine, watcher *fsnotify.Watcher, debounce time.Duration) {
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != project.FileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			presenter.Info("omni.toml changed, syncing...")
			runSync(ctx, e)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("file watcher error")
		}
	}
}

// runSync runs one sync and reports the outcome without exiting; the
// watch loop keeps running through failed syncs.
func runSync(ctx context.Context, e *engine.Engine) {
	report, err := e.Sync(ctx)
	if err != nil {
		presenter.Error(err, "Sync failed")
		return
	}
	printReport(report)
}

func init() {
	watchCmd.Flags().Int("debounce", 500, "Debounce time in milliseconds for rapid successive changes")
}

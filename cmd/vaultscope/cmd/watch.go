package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/output"
	"github.com/vaultscope/vaultscope/internal/watcher"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var noReconcile bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault and keep the index fresh",
		Long: `Watch the vault for changes and re-index documents as they are
created, edited, or deleted. Rapid successive saves of the same note
are coalesced into a single re-index.

Runs until interrupted. A full reconcile pass runs on startup unless
--no-reconcile is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, flags, noReconcile)
		},
	}

	cmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "Skip the startup reconcile pass")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, flags *rootFlags, noReconcile bool) error {
	out := output.New(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, flags, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	updater, err := a.newUpdater(ctx)
	if err != nil {
		return err
	}

	if !noReconcile {
		out.Statusf("", "Reconciling %s ...", a.cfg.Vault.Path)
		summary, err := updater.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("startup reconcile failed: %w", err)
		}
		out.Successf("Reconciled: %d indexed, %d unchanged, %d removed",
			summary.Succeeded, summary.Skipped, summary.Deleted)
	}

	w, err := newWatcher(a, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	debouncer := watcher.NewDebouncer(a.cfg.Watcher.Debounce, updater.HandleEvent, a.logger)
	defer debouncer.Stop()

	out.Statusf("👀", "Watching %s (debounce %s). Ctrl-C to stop.",
		a.cfg.Vault.Path, a.cfg.Watcher.Debounce.Round(time.Millisecond))

	go logWatchErrors(ctx, w.Errors(), a.logger)

	debouncer.Run(ctx, w.Events())

	out.Newline()
	out.Status("", "Stopping, flushing index ...")
	return a.idx.Save()
}

// newWatcher picks fsnotify or mod-time polling per config.
func newWatcher(a *app, logger *slog.Logger) (watcher.Watcher, error) {
	if a.cfg.Watcher.Polling {
		return watcher.NewPollingWatcher(a.cfg.Vault.Path, a.cfg.Watcher.PollInterval, logger)
	}
	return watcher.NewFSWatcher(a.cfg.Vault.Path, logger)
}

func logWatchErrors(ctx context.Context, errs <-chan error, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				logger.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}
}

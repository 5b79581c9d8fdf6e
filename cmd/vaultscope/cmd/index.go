package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/output"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault",
		Long: `Scan the vault and bring the index up to date.

Unchanged documents are skipped, changed documents are re-chunked and
re-embedded, and documents deleted from the vault are removed from the
index.

Examples:
  vaultscope index
  vaultscope index --vault ~/notes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, flags)
		},
	}

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, flags *rootFlags) error {
	out := output.New(cmd.OutOrStdout())

	a, err := buildApp(ctx, flags, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out.Statusf("", "Indexing %s ...", a.cfg.Vault.Path)

	updater, err := a.newUpdater(ctx)
	if err != nil {
		return err
	}

	summary, err := updater.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	out.Successf("Indexed %d documents (%d chunks) in %s",
		summary.Succeeded, summary.Chunks, summary.Duration.Round(time.Millisecond))
	if summary.Skipped > 0 {
		out.Statusf("", "%d unchanged documents skipped", summary.Skipped)
	}
	if summary.Deleted > 0 {
		out.Statusf("", "%d deleted documents removed", summary.Deleted)
	}
	if summary.Failed > 0 {
		out.Warningf("%d documents failed, see logs", summary.Failed)
	}

	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/output"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and size",
		Long: `Display information about the current index:
  - Number of indexed documents and chunks
  - Orphaned vector slots awaiting compaction
  - Embedding provider and model
  - Index data directory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, flags, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, flags *rootFlags, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	a, err := buildApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.idx.Stats(ctx)
	if err != nil {
		return err
	}
	sources, err := a.idx.Sources(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		paths := make([]string, 0, len(sources))
		for p := range sources {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"vault":     a.cfg.Vault.Path,
			"data_dir":  a.cfg.Vault.DataDir,
			"provider":  a.cfg.Embedding.Provider,
			"model":     a.embedder.ModelName(),
			"documents": stats.Sources,
			"chunks":    stats.Chunks,
			"orphans":   stats.Orphans,
			"paths":     paths,
		})
	}

	out.Statusf("📒", "Vault: %s", a.cfg.Vault.Path)
	out.Statusf("", "Data dir:  %s", a.cfg.Vault.DataDir)
	out.Statusf("", "Embedder:  %s (%s, %d dims)",
		a.cfg.Embedding.Provider, a.embedder.ModelName(), a.embedder.Dimensions())
	out.Newline()
	out.Statusf("", "Documents: %d", stats.Sources)
	out.Statusf("", "Chunks:    %d", stats.Chunks)
	if stats.Orphans > 0 {
		out.Statusf("", "Orphans:   %d (reindex to compact)", stats.Orphans)
	}

	return nil
}

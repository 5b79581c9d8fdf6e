package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultscope/vaultscope/internal/output"
	"github.com/vaultscope/vaultscope/internal/search"
	"github.com/vaultscope/vaultscope/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit         int
	tag           string
	pathPrefix    string
	modifiedAfter string
	contains      string
	format        string // "text", "json"
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed vault",
		Long: `Search the indexed vault with hybrid retrieval.

Keyword and semantic results are fused with reciprocal rank fusion,
then reranked by the cross-encoder when one is configured.

Examples:
  vaultscope search "plans for the garden"
  vaultscope search "meeting notes" --tag work --limit 5
  vaultscope search "recipes" --path cooking/ --format json
  vaultscope search "recent ideas" --modified-after 2026-08-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, flags, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "Only return chunks carrying the tag")
	cmd.Flags().StringVarP(&opts.pathPrefix, "path", "p", "", "Only return chunks under the path prefix")
	cmd.Flags().StringVar(&opts.modifiedAfter, "modified-after", "", "Only return chunks from notes modified after DATE (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.contains, "contains", "", "Only return chunks whose text matches these keywords")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func buildFilter(opts searchOptions) (*store.Filter, error) {
	filter := &store.Filter{
		Tag:        opts.tag,
		PathPrefix: opts.pathPrefix,
		Text:       opts.contains,
	}
	if opts.modifiedAfter != "" {
		ts, err := parseDate(opts.modifiedAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid --modified-after value %q: %w", opts.modifiedAfter, err)
		}
		filter.ModifiedAfter = ts
	}
	if filter.IsZero() {
		return nil, nil
	}
	return filter, nil
}

func parseDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}

func runSearch(ctx context.Context, cmd *cobra.Command, flags *rootFlags, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	// Keep stdout clean for result output: logs go to file only.
	a, err := buildApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	engine, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.Search(ctx, query, opts.limit, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(out, query, results)
	}
}

// formatText outputs results in human-readable form.
func formatText(out *output.Writer, query string, results []search.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.Path
		if r.HeadingPath != "" {
			location = fmt.Sprintf("%s > %s", r.Path, r.HeadingPath)
		}

		score := r.Similarity
		if r.RerankScore > 0 {
			score = r.RerankScore
		}
		out.Statusf("", "%d. %s (score: %.2f)", i+1, location, score)

		for _, line := range getSnippet(r.Text, 3) {
			out.Status("", "   "+line)
		}
		if len(r.MatchedTerms) > 0 {
			out.Statusf("", "   matched: %s", strings.Join(r.MatchedTerms, ", "))
		}
		out.Newline()
	}

	return nil
}

// formatJSON outputs results as a JSON array.
func formatJSON(cmd *cobra.Command, results []search.Result) error {
	type jsonResult struct {
		ChunkID     string   `json:"chunk_id"`
		Path        string   `json:"path"`
		Heading     string   `json:"heading,omitempty"`
		HeadingPath string   `json:"heading_path,omitempty"`
		Similarity  float64  `json:"similarity"`
		RerankScore float64  `json:"rerank_score,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Modified    string   `json:"modified,omitempty"`
		Text        string   `json:"text"`
	}

	rows := make([]jsonResult, 0, len(results))
	for _, r := range results {
		row := jsonResult{
			ChunkID:     r.ChunkID,
			Path:        r.Path,
			Heading:     r.Heading,
			HeadingPath: r.HeadingPath,
			Similarity:  r.Similarity,
			RerankScore: r.RerankScore,
			Tags:        r.Tags,
			Text:        r.Text,
		}
		if !r.Modified.IsZero() {
			row.Modified = r.Modified.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// getSnippet returns the first n non-empty-trimmed lines of content.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/fusion"
)

var (
	searchCollection string
	searchLimit      int
)

func init() {
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "Collection to search (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", DefaultSearchLimit, "Maximum results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over a collection",
	Long: `Hybrid search over a collection.

The query runs against both the lexical full-text index and the embedding
index, and the two rankings are fused by reciprocal rank. When the
embedding service is unreachable the search degrades to lexical only.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

// searchResult is a fused hit enriched with its chunk and paper context.
type searchResult struct {
	fusion.Result
	PaperID string `json:"paper_id"`
	Title   string `json:"title"`
	Year    int    `json:"year,omitempty"`
	DOI     string `json:"doi,omitempty"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(searchCollection)
	if searchLimit < 1 {
		exitWithError(ExitDataError, "limit must be positive")
	}
	query := args[0]

	ctx := context.Background()

	// Embed the query if the provider is reachable; otherwise the
	// lexical ranking stands alone.
	var queryVec []float32
	if vecs, err := a.provider.Embed(ctx, []string{query}); err == nil && len(vecs) == 1 {
		queryVec = vecs[0]
	}

	fused, err := a.ranker.Fuse(ctx, collectionID, query, queryVec, searchLimit)
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}

	results := make([]searchResult, 0, len(fused))
	for _, hit := range fused {
		enriched, err := a.enrich(hit)
		if err != nil {
			exitWithError(ExitError, "loading result %s: %v", hit.ChunkID, err)
		}
		results = append(results, *enriched)
	}

	if humanOutput {
		for i, r := range results {
			fmt.Printf("%2d. %s (%d) [%s]\n", i+1, truncateString(r.Title, ListTitleMaxLen), r.Year, r.Section)
			fmt.Printf("    %s\n", truncateString(oneLine(r.Text), SearchTextMaxLen))
		}
		if len(results) == 0 {
			fmt.Println("No results.")
		}
		return nil
	}
	return outputJSON(results)
}

func (a *app) enrich(hit fusion.Result) (*searchResult, error) {
	chunk, err := a.db.GetChunk(hit.ChunkID)
	if err != nil {
		return nil, err
	}
	p, err := a.db.GetPaper(chunk.PaperID)
	if err != nil {
		return nil, err
	}
	return &searchResult{
		Result:  hit,
		PaperID: p.ID,
		Title:   p.Title,
		Year:    p.Year,
		DOI:     p.DOI,
		Section: chunk.Section,
		Text:    chunk.Text,
	}, nil
}

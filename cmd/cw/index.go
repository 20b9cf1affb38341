package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/ingest"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/tasks"
)

var indexCollection string

func init() {
	indexCmd.Flags().StringVarP(&indexCollection, "collection", "c", "", "Collection to reindex (required)")
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Re-embed a collection's chunks",
	Long: `Re-embed a collection's chunks.

Embedding outages during ingestion leave chunks searchable lexically but
absent from the vector index. This command re-embeds every chunk in the
collection once the embedding service is back.`,
	RunE: runIndex,
}

// indexPayload is the queued job input for a reindex pass.
type indexPayload struct {
	CollectionID string `json:"collection_id"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(indexCollection)

	queue := tasks.NewQueue(a.db, 1)
	queue.Register(tasks.TypeIndexPaper, indexHandler(a.ingestor))
	queue.Start()

	jobID, err := queue.Enqueue(collectionID, tasks.TypeIndexPaper, indexPayload{CollectionID: collectionID})
	if err != nil {
		exitWithError(ExitError, "queueing reindex: %v", err)
	}
	queue.Drain()

	reportJob(a, jobID, func(res *ingest.ReindexResult) {
		fmt.Printf("Visited %d papers, embedded %d chunks\n", res.PapersVisited, res.ChunksEmbedded)
		if res.EmbeddingsFailed > 0 {
			fmt.Printf("  embeddings failed: %d (still lexical only)\n", res.EmbeddingsFailed)
		}
	})
	return nil
}

// indexHandler adapts the reindex pass to the job queue.
func indexHandler(ing *ingest.Ingestor) tasks.Handler {
	return func(ctx context.Context, job *storage.Job, payload json.RawMessage) (any, error) {
		var p indexPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		return ing.ReindexCollection(ctx, p.CollectionID)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/config"
	"github.com/citeweave/citeweave/internal/ingest"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/tasks"
	"github.com/citeweave/citeweave/internal/tei"
)

var ingestCollection string

func init() {
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "Collection to ingest into (required)")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf-path>",
	Short: "Ingest a PDF into a collection",
	Long: `Ingest a PDF into a collection.

The PDF is copied into the repository, its text extracted, and the paper
resolved against what the collection already holds: a matching DOI or
title/year enriches the existing record instead of creating a duplicate.
Sections are chunked and indexed lexically and by embedding; parsed
references become unresolved citation edges for graph expansion.

Re-ingesting the same PDF is idempotent: unchanged sections keep their
chunks, changed sections are re-chunked and re-indexed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// ingestPayload is the queued job input for a PDF ingestion.
type ingestPayload struct {
	CollectionID string `json:"collection_id"`
	PDFPath      string `json:"pdf_path"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(ingestCollection)

	src := args[0]
	if _, err := os.Stat(src); err != nil {
		exitWithError(ExitDataError, "reading %s: %v", src, err)
	}

	stored, err := storePDF(a.root, src)
	if err != nil {
		exitWithError(ExitError, "storing PDF: %v", err)
	}

	queue := tasks.NewQueue(a.db, a.cfg.Workers)
	queue.Register(tasks.TypeIngestPDF, ingestHandler(a.ingestor))
	queue.Start()

	jobID, err := queue.Enqueue(collectionID, tasks.TypeIngestPDF, ingestPayload{
		CollectionID: collectionID,
		PDFPath:      stored,
	})
	if err != nil {
		exitWithError(ExitError, "queueing ingestion: %v", err)
	}
	queue.Drain()

	reportJob(a, jobID, func(res *ingest.Result) {
		fmt.Printf("Paper %s (%s)\n", res.PaperID, res.Strategy)
		fmt.Printf("  authors linked:   %d\n", res.AuthorsLinked)
		fmt.Printf("  citations found:  %d\n", res.CitationsFound)
		fmt.Printf("  chunks created:   %d\n", res.ChunksCreated)
		if res.SectionsUnchanged > 0 {
			fmt.Printf("  sections unchanged: %d\n", res.SectionsUnchanged)
		}
		if res.EmbeddingsSkipped > 0 {
			fmt.Printf("  embeddings skipped: %d (lexical index only)\n", res.EmbeddingsSkipped)
		}
	})
	return nil
}

// ingestHandler adapts the ingestor to the job queue.
func ingestHandler(ing *ingest.Ingestor) tasks.Handler {
	return func(ctx context.Context, job *storage.Job, payload json.RawMessage) (any, error) {
		var p ingestPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}

		ex, err := tei.ExtractPDF(p.PDFPath)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", p.PDFPath, err)
		}
		return ing.IngestExtraction(ctx, p.CollectionID, ex, p.PDFPath)
	}
}

// storePDF copies the source PDF into the repository's pdfs directory and
// returns the stored path.
func storePDF(root, src string) (string, error) {
	dst := filepath.Join(config.PDFPath(root), filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

// reportJob reads a finished job back from the database and prints its
// result. Failed jobs exit with the recorded reason.
func reportJob[T any](a *app, jobID string, human func(*T)) {
	job, err := a.db.GetJob(jobID)
	if err != nil {
		exitWithError(ExitError, "reading job %s: %v", jobID, err)
	}

	if job.State == storage.JobFailed {
		exitWithError(ExitUpstream, "%s", job.Detail)
	}

	var res T
	if err := json.Unmarshal([]byte(job.Detail), &res); err != nil {
		exitWithError(ExitError, "decoding job result: %v", err)
	}

	if humanOutput {
		human(&res)
	} else {
		outputJSON(res)
	}
}

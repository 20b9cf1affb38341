package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citeweave/citeweave/internal/graph"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/tasks"
	"github.com/citeweave/citeweave/internal/viz"
)

var (
	graphCollection string
	graphMode       string
	graphDepth      int
	graphSeeds      []string
	graphDOT        bool
)

func init() {
	graphBuildCmd.Flags().StringVarP(&graphCollection, "collection", "c", "", "Collection to expand (required)")
	graphBuildCmd.Flags().StringVarP(&graphMode, "mode", "m", graph.ModeBFS, "Traversal mode: bfs or dfs")
	graphBuildCmd.Flags().IntVarP(&graphDepth, "depth", "d", 0, "Maximum depth (default from repo config)")
	graphBuildCmd.Flags().StringSliceVarP(&graphSeeds, "seed", "s", nil, "Seed paper ID (repeatable; default: all papers)")

	graphStatusCmd.Flags().StringVarP(&graphCollection, "collection", "c", "", "Collection to report on (required)")

	graphExportCmd.Flags().StringVarP(&graphCollection, "collection", "c", "", "Collection to export (required)")
	graphExportCmd.Flags().BoolVar(&graphDOT, "dot", false, "Emit Graphviz DOT instead of JSON")

	graphCmd.AddCommand(graphBuildCmd)
	graphCmd.AddCommand(graphStatusCmd)
	graphCmd.AddCommand(graphExportCmd)
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and inspect the citation graph",
}

var graphBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Expand the citation graph from seed papers",
	Long: `Expand the citation graph from seed papers.

Each paper's unresolved citations are looked up on Crossref by DOI, or by
title and year when no DOI is known. Resolved works become papers in the
collection and the traversal continues outward until the depth cap.
Papers at the cap are reached but their own citations are not expanded.

Unresolvable citations (not found, low title confidence, service outage)
are skipped and counted; they do not stop the build. One build runs per
collection at a time.`,
	RunE: runGraphBuild,
}

var graphStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report resolution progress and build history",
	RunE:  runGraphStatus,
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the resolved citation graph",
	RunE:  runGraphExport,
}

// buildPayload is the queued job input for a graph build.
type buildPayload struct {
	Options graph.Options `json:"options"`
}

func runGraphBuild(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(graphCollection)

	depth := graphDepth
	if depth == 0 {
		depth = a.cfg.GraphDepth()
	}
	if depth < 1 {
		exitWithError(ExitDataError, "depth must be positive")
	}

	seeds := graphSeeds
	if len(seeds) == 0 {
		papers, err := a.db.ListPapers(collectionID)
		if err != nil {
			exitWithError(ExitError, "listing papers: %v", err)
		}
		for _, p := range papers {
			seeds = append(seeds, p.ID)
		}
	}
	if len(seeds) == 0 {
		exitWithError(ExitDataError, "collection %s has no papers to seed from", collectionID)
	}

	release, err := a.locks.Acquire(collectionID)
	if err != nil {
		if errors.Is(err, graph.ErrBuildInProgress) {
			exitWithError(ExitBusy, "a build is already running for collection %s", collectionID)
		}
		exitWithError(ExitError, "acquiring build lock: %v", err)
	}
	defer release()

	queue := tasks.NewQueue(a.db, 1)
	queue.Register(tasks.TypeGraphBuild, buildHandler(a.builder))
	queue.Start()

	jobID, err := queue.Enqueue(collectionID, tasks.TypeGraphBuild, buildPayload{
		Options: graph.Options{
			CollectionID: collectionID,
			SeedIDs:      seeds,
			Mode:         graphMode,
			MaxDepth:     depth,
		},
	})
	if err != nil {
		exitWithError(ExitError, "queueing build: %v", err)
	}
	queue.Drain()

	reportJob(a, jobID, func(rep *graph.Report) {
		fmt.Printf("Processed %d papers to depth %d\n", rep.NodesProcessed, rep.MaxDepthReached)
		fmt.Printf("  papers added:   %d\n", rep.PapersAdded)
		fmt.Printf("  edges resolved: %d\n", rep.EdgesResolved)
		fmt.Printf("  edges skipped:  %d\n", rep.EdgesSkipped)
		for reason, n := range rep.SkipReasons {
			fmt.Printf("    %s: %d\n", reason, n)
		}
	})
	return nil
}

// buildHandler adapts the graph builder to the job queue.
func buildHandler(b *graph.Builder) tasks.Handler {
	return func(ctx context.Context, job *storage.Job, payload json.RawMessage) (any, error) {
		var p buildPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		return b.Build(ctx, p.Options)
	}
}

// graphStatus summarizes resolution progress for a collection.
type graphStatus struct {
	CollectionID  string        `json:"collection_id"`
	Papers        int           `json:"papers"`
	EdgesResolved int           `json:"edges_resolved"`
	EdgesTotal    int           `json:"edges_total"`
	ResolvedShare float64       `json:"resolved_share"`
	Jobs          []storage.Job `json:"jobs,omitempty"`
}

func runGraphStatus(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(graphCollection)

	papers, err := a.db.CountPapers(collectionID)
	if err != nil {
		exitWithError(ExitError, "counting papers: %v", err)
	}
	resolved, total, err := a.db.CountResolvedCitations(collectionID)
	if err != nil {
		exitWithError(ExitError, "counting citations: %v", err)
	}
	jobs, err := a.db.ListJobs(collectionID)
	if err != nil {
		exitWithError(ExitError, "listing jobs: %v", err)
	}

	status := graphStatus{
		CollectionID:  collectionID,
		Papers:        papers,
		EdgesResolved: resolved,
		EdgesTotal:    total,
		Jobs:          jobs,
	}
	if total > 0 {
		status.ResolvedShare = float64(resolved) / float64(total)
	}

	if humanOutput {
		fmt.Printf("Collection %s: %d papers, %d/%d edges resolved\n",
			collectionID, papers, resolved, total)
		for _, j := range jobs {
			fmt.Printf("  %s  %s  %s  %s\n", j.CreatedAt, j.Type, j.State, j.ID)
		}
		return nil
	}
	return outputJSON(status)
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	a := openApp()
	defer a.Close()

	collectionID := a.requireCollection(graphCollection)

	g, err := viz.BuildGraph(a.db, collectionID)
	if err != nil {
		exitWithError(ExitError, "building graph: %v", err)
	}

	if graphDOT {
		fmt.Print(g.ToDOT())
		return nil
	}
	return outputJSON(g)
}

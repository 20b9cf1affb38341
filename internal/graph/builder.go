// Package graph expands a collection's citation graph by traversing edges
// outward from seed papers, resolving each referenced work against the store
// or the bibliographic lookup service.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/citeweave/citeweave/internal/crossref"
	"github.com/citeweave/citeweave/internal/identity"
	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/resolve"
	"github.com/citeweave/citeweave/internal/storage"
)

// Traversal modes.
const (
	ModeBFS = "bfs"
	ModeDFS = "dfs"
)

// TitleMatchThreshold is the minimum lookup confidence for resolving an edge
// that has no DOI. Below it the edge is skipped rather than risk linking the
// wrong work.
const TitleMatchThreshold = 0.85

// Skip reasons recorded in the build report.
const (
	SkipNotFound      = "not_found"
	SkipUnavailable   = "lookup_unavailable"
	SkipLowConfidence = "low_confidence"
	SkipNoIdentity    = "no_identity"
)

// Lookup is the bibliographic service edges are resolved against.
type Lookup interface {
	LookupDOI(ctx context.Context, doi string) (*crossref.Work, error)
	SearchTitleYear(ctx context.Context, title string, year int) ([]crossref.Candidate, error)
}

// PaperHook is called after the builder creates a paper, letting callers
// index the new work (abstract chunks, embeddings) as the graph grows.
type PaperHook func(ctx context.Context, p *paper.Paper, w *crossref.Work) error

// ProgressReporter receives updates as papers are processed.
type ProgressReporter interface {
	// OnNode is called after each processed paper.
	OnNode(processed int, depth int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(processed, depth int)

// OnNode implements ProgressReporter.
func (f ProgressFunc) OnNode(processed, depth int) {
	f(processed, depth)
}

// Options configures one graph build.
type Options struct {
	CollectionID string
	SeedIDs      []string // paper IDs to start from
	Mode         string   // ModeBFS or ModeDFS
	MaxDepth     int      // papers at this depth are reached but not expanded
}

// Report summarizes a completed build.
type Report struct {
	NodesProcessed  int            `json:"nodes_processed"`
	PapersAdded     int            `json:"papers_added"`
	EdgesResolved   int            `json:"edges_resolved"`
	EdgesSkipped    int            `json:"edges_skipped"`
	MaxDepthReached int            `json:"max_depth_reached"`
	SkipReasons     map[string]int `json:"skip_reasons,omitempty"`
}

// Builder runs citation graph expansion.
type Builder struct {
	db       *storage.DB
	resolver *resolve.Resolver
	lookup   Lookup
	hook     PaperHook
	progress ProgressReporter
}

// NewBuilder creates a graph builder. The lookup may be nil, in which case
// every edge not already present in the store is skipped.
func NewBuilder(db *storage.DB, resolver *resolve.Resolver, lookup Lookup) *Builder {
	return &Builder{db: db, resolver: resolver, lookup: lookup}
}

// SetPaperHook registers a callback for papers the build creates.
func (b *Builder) SetPaperHook(hook PaperHook) {
	b.hook = hook
}

// SetProgressReporter sets the progress reporter for the build.
func (b *Builder) SetProgressReporter(reporter ProgressReporter) {
	b.progress = reporter
}

// frontierEntry is one pending paper in the traversal.
type frontierEntry struct {
	paperID string
	depth   int
}

// Build traverses the citation graph from the seeds out to MaxDepth,
// resolving edges and adding newly discovered papers to the collection.
// Cancellation is checked between papers; a canceled build returns the
// partial report together with the context error, and all work already
// written stays written.
func (b *Builder) Build(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{SkipReasons: make(map[string]int)}

	if opts.Mode != ModeBFS && opts.Mode != ModeDFS {
		return report, fmt.Errorf("unknown traversal mode %q", opts.Mode)
	}
	if opts.MaxDepth < 0 {
		return report, errors.New("max depth must be non-negative")
	}
	if len(opts.SeedIDs) == 0 {
		return report, errors.New("at least one seed paper is required")
	}
	if _, err := b.db.GetCollection(opts.CollectionID); err != nil {
		return report, err
	}

	st := &traversal{
		builder:    b,
		opts:       opts,
		report:     report,
		visitedID:  make(map[string]bool),
		visitedDOI: make(map[string]string),
	}

	// Seeds are visited up front so a seed rediscovered through an edge is
	// never re-expanded.
	var frontier []frontierEntry
	for _, id := range opts.SeedIDs {
		p, err := b.db.GetPaper(id)
		if err != nil {
			return report, fmt.Errorf("loading seed %s: %w", id, err)
		}
		if p.CollectionID != opts.CollectionID {
			return report, fmt.Errorf("seed %s belongs to another collection", id)
		}
		if st.visitedID[p.ID] {
			continue
		}
		st.markVisited(p)
		frontier = append(frontier, frontierEntry{paperID: p.ID, depth: 0})
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var entry frontierEntry
		switch opts.Mode {
		case ModeBFS:
			entry = frontier[0]
			frontier = frontier[1:]
		case ModeDFS:
			entry = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		}

		// Papers at the depth limit are reachable but never expanded.
		if entry.depth >= opts.MaxDepth {
			continue
		}

		children, err := st.expand(ctx, entry)
		if err != nil {
			return report, err
		}

		report.NodesProcessed++
		if b.progress != nil {
			b.progress.OnNode(report.NodesProcessed, entry.depth)
		}

		if len(children) > 0 && entry.depth+1 > report.MaxDepthReached {
			report.MaxDepthReached = entry.depth + 1
		}
		switch opts.Mode {
		case ModeBFS:
			frontier = append(frontier, children...)
		case ModeDFS:
			// Children go on the stack in reverse so the first edge of a
			// paper is the first one explored.
			for i := len(children) - 1; i >= 0; i-- {
				frontier = append(frontier, children[i])
			}
		}
	}

	return report, nil
}

// traversal carries the mutable state of one build.
type traversal struct {
	builder    *Builder
	opts       Options
	report     *Report
	visitedID  map[string]bool
	visitedDOI map[string]string // normalized DOI -> paper ID in this collection
}

func (t *traversal) markVisited(p *paper.Paper) {
	t.visitedID[p.ID] = true
	if p.NormDOI != "" {
		t.visitedDOI[p.NormDOI] = p.ID
	}
}

// expand resolves the outgoing edges of one paper and returns the children to
// enqueue. Edge failures are recorded as skips; only store errors abort the
// build.
func (t *traversal) expand(ctx context.Context, entry frontierEntry) ([]frontierEntry, error) {
	edges, err := t.builder.db.ListCitations(entry.paperID)
	if err != nil {
		return nil, err
	}

	var children []frontierEntry
	for _, edge := range edges {
		target, err := t.resolveEdge(ctx, edge)
		if err != nil {
			return nil, err
		}
		if target == nil {
			continue
		}

		if !t.visitedID[target.ID] {
			t.markVisited(target)
			children = append(children, frontierEntry{paperID: target.ID, depth: entry.depth + 1})
		}
	}
	return children, nil
}

// resolveEdge finds or creates the paper an edge points at and records the
// resolution. Returns nil when the edge is skipped.
func (t *traversal) resolveEdge(ctx context.Context, edge paper.Citation) (*paper.Paper, error) {
	if edge.Resolved() {
		p, err := t.builder.db.GetPaper(edge.ResolvedPaperID)
		if storage.IsNotFound(err) {
			t.skip(SkipNotFound)
			return nil, nil
		}
		return p, err
	}

	if edge.DstDOI != "" {
		return t.resolveByDOI(ctx, edge, edge.DstDOI)
	}
	if edge.DstTitle != "" {
		return t.resolveByTitle(ctx, edge)
	}

	t.skip(SkipNoIdentity)
	return nil, nil
}

func (t *traversal) resolveByDOI(ctx context.Context, edge paper.Citation, doi string) (*paper.Paper, error) {
	normDOI := identity.NormalizeDOI(doi)

	// A DOI already seen during this build resolves without another lookup.
	if id, ok := t.visitedDOI[normDOI]; ok {
		return t.finishEdge(edge, id)
	}

	existing, err := t.builder.db.FindPaperByDOI(t.opts.CollectionID, normDOI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return t.finishEdge(edge, existing.ID)
	}

	candidate, work, err := t.candidateForDOI(ctx, normDOI)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, nil // skip already recorded
	}
	return t.createAndFinish(ctx, edge, *candidate, work)
}

// candidateForDOI builds a paper candidate for a DOI, preferring metadata
// already held in another collection over an API call. The lookup work, when
// one was fetched, is returned alongside so its authors can be attached.
func (t *traversal) candidateForDOI(ctx context.Context, normDOI string) (*resolve.PaperCandidate, *crossref.Work, error) {
	known, err := t.builder.db.FindPaperByDOIAnyCollection(normDOI)
	if err != nil {
		return nil, nil, err
	}
	if known != nil {
		return &resolve.PaperCandidate{
			DOI:      known.DOI,
			Title:    known.Title,
			Year:     known.Year,
			Abstract: known.Abstract,
			Venue:    known.Venue,
			URL:      known.URL,
			Source:   known.Source,
			AddedVia: paper.AddedViaGraph,
		}, nil, nil
	}

	if t.builder.lookup == nil {
		t.skip(SkipUnavailable)
		return nil, nil, nil
	}

	work, err := t.builder.lookup.LookupDOI(ctx, normDOI)
	switch {
	case crossref.IsNotFound(err):
		t.skip(SkipNotFound)
		return nil, nil, nil
	case crossref.IsUnavailable(err):
		t.skip(SkipUnavailable)
		return nil, nil, nil
	case err != nil:
		return nil, nil, err
	}

	c := workCandidate(work)
	return &c, work, nil
}

func (t *traversal) resolveByTitle(ctx context.Context, edge paper.Citation) (*paper.Paper, error) {
	normTitle := identity.NormalizeTitle(edge.DstTitle)

	existing, err := t.builder.db.FindPaperByTitleYear(t.opts.CollectionID, normTitle, edge.DstYear)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return t.finishEdge(edge, existing.ID)
	}

	if t.builder.lookup == nil {
		t.skip(SkipUnavailable)
		return nil, nil
	}

	candidates, err := t.builder.lookup.SearchTitleYear(ctx, edge.DstTitle, edge.DstYear)
	switch {
	case crossref.IsNotFound(err):
		t.skip(SkipNotFound)
		return nil, nil
	case crossref.IsUnavailable(err):
		t.skip(SkipUnavailable)
		return nil, nil
	case err != nil:
		return nil, err
	}

	if len(candidates) == 0 {
		t.skip(SkipNotFound)
		return nil, nil
	}
	best := candidates[0]
	if best.Confidence < TitleMatchThreshold {
		t.skip(SkipLowConfidence)
		return nil, nil
	}

	// The matched work may carry a DOI we have already seen or stored.
	if normDOI := identity.NormalizeDOI(best.DOI); normDOI != "" {
		if id, ok := t.visitedDOI[normDOI]; ok {
			return t.finishEdge(edge, id)
		}
		stored, err := t.builder.db.FindPaperByDOI(t.opts.CollectionID, normDOI)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			return t.finishEdge(edge, stored.ID)
		}
	}

	return t.createAndFinish(ctx, edge, workCandidate(&best.Work), &best.Work)
}

// createAndFinish resolves a candidate into the collection, attaches its
// authors, resolves the edge, and fires the creation hook.
func (t *traversal) createAndFinish(ctx context.Context, edge paper.Citation, candidate resolve.PaperCandidate, work *crossref.Work) (*paper.Paper, error) {
	res, err := t.builder.resolver.ResolvePaper(candidate, t.opts.CollectionID)
	if err != nil {
		return nil, err
	}
	if res.Created {
		t.report.PapersAdded++
		if work != nil {
			if err := t.attachAuthors(res.Paper.ID, work.Authors); err != nil {
				return nil, err
			}
		}
		if t.builder.hook != nil {
			if err := t.builder.hook(ctx, res.Paper, work); err != nil {
				return nil, fmt.Errorf("paper hook for %s: %w", res.Paper.ID, err)
			}
		}
	}
	return t.finishEdge(edge, res.Paper.ID)
}

func (t *traversal) attachAuthors(paperID string, authors []crossref.WorkAuthor) error {
	for i, wa := range authors {
		a, _, err := t.builder.resolver.ResolveAuthor(wa.Name, wa.Affiliation)
		if err != nil {
			continue // a malformed author never blocks the build
		}
		if err := t.builder.resolver.LinkAuthor(paperID, a.ID, i); err != nil {
			return err
		}
	}
	return nil
}

// finishEdge records the edge resolution and returns the target paper.
func (t *traversal) finishEdge(edge paper.Citation, targetID string) (*paper.Paper, error) {
	if err := t.builder.db.ResolveCitation(edge.ID, targetID); err != nil {
		return nil, err
	}
	t.report.EdgesResolved++
	return t.builder.db.GetPaper(targetID)
}

func (t *traversal) skip(reason string) {
	t.report.EdgesSkipped++
	t.report.SkipReasons[reason]++
}

// workCandidate converts a lookup result into a paper candidate discovered
// through graph traversal.
func workCandidate(w *crossref.Work) resolve.PaperCandidate {
	return resolve.PaperCandidate{
		DOI:      w.DOI,
		Title:    w.Title,
		Year:     w.Year,
		Abstract: w.Abstract,
		Venue:    w.Venue,
		URL:      w.URL,
		Source:   paper.SourceCrossref,
		AddedVia: paper.AddedViaGraph,
	}
}

// Package ingest drives papers into a collection: resolving them against
// existing records, attaching authors and citation edges, and keeping the
// lexical and vector indexes in sync with chunked text.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/citeweave/citeweave/internal/chunker"
	"github.com/citeweave/citeweave/internal/crossref"
	"github.com/citeweave/citeweave/internal/embedding"
	"github.com/citeweave/citeweave/internal/identity"
	"github.com/citeweave/citeweave/internal/lexical"
	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/resolve"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/tei"
	"github.com/citeweave/citeweave/internal/vector"
)

// Searcher is the bibliographic search capability used by topic ingestion.
type Searcher interface {
	SearchWorks(ctx context.Context, query string, limit int) ([]crossref.Work, error)
}

// Ingestor wires the resolution and indexing pipeline.
type Ingestor struct {
	db       *storage.DB
	resolver *resolve.Resolver
	splitter *chunker.Chunker
	lexical  *lexical.Index
	vectors  *vector.Store
	provider embedding.Provider // nil disables embeddings
	search   Searcher
}

// New creates an ingestor. Provider and searcher may be nil; the
// corresponding steps are then skipped or unavailable.
func New(db *storage.DB, resolver *resolve.Resolver, lex *lexical.Index, vec *vector.Store, provider embedding.Provider, search Searcher) *Ingestor {
	return &Ingestor{
		db:       db,
		resolver: resolver,
		splitter: chunker.New(),
		lexical:  lex,
		vectors:  vec,
		provider: provider,
		search:   search,
	}
}

// Result summarizes one document ingestion.
type Result struct {
	PaperID           string `json:"paper_id"`
	Created           bool   `json:"created"`
	Strategy          string `json:"strategy"`
	AuthorsLinked     int    `json:"authors_linked"`
	CitationsFound    int    `json:"citations_found"`
	ChunksCreated     int    `json:"chunks_created"`
	ChunksRemoved     int    `json:"chunks_removed"`
	SectionsUnchanged int    `json:"sections_unchanged"`
	EmbeddingsSkipped int    `json:"embeddings_skipped,omitempty"`
}

// IngestExtraction resolves an extracted document into a collection and
// indexes its text. Re-ingesting the same document is idempotent: sections
// whose content hash is unchanged keep their chunks, and duplicate citation
// edges are no-ops.
func (in *Ingestor) IngestExtraction(ctx context.Context, collectionID string, ex *tei.Extraction, pdfPath string) (*Result, error) {
	res, err := in.resolver.ResolvePaper(resolve.PaperCandidate{
		DOI:      ex.DOI,
		Title:    ex.Title,
		Year:     ex.Year,
		Abstract: ex.Abstract,
		Venue:    ex.Venue,
		PDFPath:  pdfPath,
		Source:   paper.SourceUpload,
		AddedVia: paper.AddedViaUpload,
	}, collectionID)
	if err != nil {
		return nil, err
	}

	out := &Result{PaperID: res.Paper.ID, Created: res.Created, Strategy: res.Strategy}

	for i, a := range ex.Authors {
		author, _, err := in.resolver.ResolveAuthor(a.Name, a.Affiliation)
		if err != nil {
			continue
		}
		if err := in.resolver.LinkAuthor(res.Paper.ID, author.ID, i); err != nil {
			return nil, err
		}
		out.AuthorsLinked++
	}

	existing, err := in.db.ListCitations(res.Paper.ID)
	if err != nil {
		return nil, err
	}
	seenDOI := make(map[string]bool)
	seenTitle := make(map[string]bool)
	for _, e := range existing {
		if e.DstDOI != "" {
			seenDOI[e.DstDOI] = true
		} else {
			seenTitle[titleKey(e.DstTitle, e.DstYear)] = true
		}
	}

	for _, ref := range ex.References {
		normDOI := identity.NormalizeDOI(ref.DOI)
		if normDOI != "" {
			if seenDOI[normDOI] {
				continue
			}
			seenDOI[normDOI] = true
		} else {
			key := titleKey(ref.Title, ref.Year)
			if seenTitle[key] {
				continue
			}
			seenTitle[key] = true
		}

		edge := &paper.Citation{
			ID:         uuid.New().String(),
			SrcPaperID: res.Paper.ID,
			DstDOI:     normDOI,
			DstTitle:   ref.Title,
			DstYear:    ref.Year,
		}
		if err := in.db.CreateCitation(edge); err != nil {
			return nil, err
		}
		out.CitationsFound++
	}

	oldHashes, err := in.db.SectionHashes(res.Paper.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range ex.Sections {
		if err := in.syncSection(ctx, collectionID, res.Paper.ID, s.Name, s.Text, oldHashes, out); err != nil {
			return nil, err
		}
	}

	return out, in.vectors.Flush()
}

// IndexDiscoveredPaper indexes the abstract of a paper added during graph
// expansion. It is shaped to serve as the graph builder's creation hook.
func (in *Ingestor) IndexDiscoveredPaper(ctx context.Context, p *paper.Paper, w *crossref.Work) error {
	abstract := p.Abstract
	if abstract == "" && w != nil {
		abstract = w.Abstract
	}
	if abstract == "" {
		return nil
	}

	oldHashes, err := in.db.SectionHashes(p.ID)
	if err != nil {
		return err
	}
	out := &Result{}
	if err := in.syncSection(ctx, p.CollectionID, p.ID, "abstract", abstract, oldHashes, out); err != nil {
		return err
	}
	return in.vectors.Flush()
}

// TopicResult summarizes a topic ingestion run.
type TopicResult struct {
	PapersCreated int `json:"papers_created"`
	PapersMatched int `json:"papers_matched"`
	ChunksCreated int `json:"chunks_created"`
}

// IngestTopic searches the bibliographic service for a topic and pulls the
// top works into the collection, indexing their abstracts. Individual work
// failures are skipped; the run continues.
func (in *Ingestor) IngestTopic(ctx context.Context, collectionID, query string, limit int) (*TopicResult, error) {
	if in.search == nil {
		return nil, fmt.Errorf("no bibliographic search configured")
	}

	works, err := in.search.SearchWorks(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching works: %w", err)
	}

	out := &TopicResult{}
	for _, w := range works {
		res, err := in.resolver.ResolvePaper(resolve.PaperCandidate{
			DOI:      w.DOI,
			Title:    w.Title,
			Year:     w.Year,
			Abstract: w.Abstract,
			Venue:    w.Venue,
			URL:      w.URL,
			Source:   paper.SourceCrossref,
			AddedVia: paper.AddedViaTopic,
		}, collectionID)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil, err
			}
			continue
		}
		if res.Created {
			out.PapersCreated++
		} else {
			out.PapersMatched++
		}

		for i, wa := range w.Authors {
			author, _, err := in.resolver.ResolveAuthor(wa.Name, wa.Affiliation)
			if err != nil {
				continue
			}
			if err := in.resolver.LinkAuthor(res.Paper.ID, author.ID, i); err != nil {
				return nil, err
			}
		}

		if w.Abstract != "" {
			oldHashes, err := in.db.SectionHashes(res.Paper.ID)
			if err != nil {
				return nil, err
			}
			sync := &Result{}
			if err := in.syncSection(ctx, collectionID, res.Paper.ID, "abstract", w.Abstract, oldHashes, sync); err != nil {
				return nil, err
			}
			out.ChunksCreated += sync.ChunksCreated
		}
	}

	return out, in.vectors.Flush()
}

// ReindexResult summarizes a re-embedding pass.
type ReindexResult struct {
	PapersVisited    int `json:"papers_visited"`
	ChunksEmbedded   int `json:"chunks_embedded"`
	EmbeddingsFailed int `json:"embeddings_failed,omitempty"`
}

// ReindexCollection re-embeds every chunk in a collection, repairing vectors
// missed during embedding outages. The lexical index is untouched; chunks
// whose embedding fails again stay lexically searchable.
func (in *Ingestor) ReindexCollection(ctx context.Context, collectionID string) (*ReindexResult, error) {
	if in.provider == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}

	papers, err := in.db.ListPapers(collectionID)
	if err != nil {
		return nil, err
	}

	out := &ReindexResult{}
	for _, p := range papers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := in.db.ListChunks(p.ID)
		if err != nil {
			return nil, err
		}
		out.PapersVisited++
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := in.provider.Embed(ctx, texts)
		if err != nil {
			out.EmbeddingsFailed += len(chunks)
			continue
		}
		for i, c := range chunks {
			if err := in.vectors.Upsert(collectionID, c.ID, vecs[i]); err != nil {
				return nil, err
			}
		}
		out.ChunksEmbedded += len(chunks)
	}

	return out, in.vectors.Flush()
}

// titleKey is the dedup key for citation edges that carry no DOI.
func titleKey(title string, year int) string {
	return fmt.Sprintf("%s|%d", identity.NormalizeTitle(title), year)
}

// syncSection reconciles one section's chunks with its current text. An
// unchanged content hash leaves the section alone; otherwise old chunks are
// dropped from both indexes and fresh ones written. Embedding failures skip
// the vectors but keep the chunks searchable lexically.
func (in *Ingestor) syncSection(ctx context.Context, collectionID, paperID, section, text string, oldHashes map[string]string, out *Result) error {
	newHash := chunker.SectionHash(text)
	if oldHashes[section] == newHash {
		out.SectionsUnchanged++
		return nil
	}

	removed, err := in.db.DeleteSectionChunks(paperID, section)
	if err != nil {
		return err
	}
	for _, chunkID := range removed {
		if err := in.vectors.Delete(collectionID, chunkID); err != nil {
			return err
		}
	}
	out.ChunksRemoved += len(removed)

	chunks := in.splitter.ChunkSection(paperID, section, text)
	for i := range chunks {
		if err := in.lexical.Upsert(collectionID, &chunks[i]); err != nil {
			return err
		}
	}
	out.ChunksCreated += len(chunks)

	if in.provider == nil || len(chunks) == 0 {
		out.EmbeddingsSkipped += len(chunks)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := in.provider.Embed(ctx, texts)
	if err != nil {
		out.EmbeddingsSkipped += len(chunks)
		return nil
	}
	for i, c := range chunks {
		if err := in.vectors.Upsert(collectionID, c.ID, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

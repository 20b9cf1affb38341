package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/citeweave/citeweave/internal/crossref"
	"github.com/citeweave/citeweave/internal/lexical"
	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/resolve"
	"github.com/citeweave/citeweave/internal/storage"
	"github.com/citeweave/citeweave/internal/tei"
	"github.com/citeweave/citeweave/internal/vector"
)

// fakeProvider returns a constant-dimension vector derived from text length.
type fakeProvider struct {
	fail bool
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0, 0}
	}
	return out, nil
}

func (f *fakeProvider) ModelName() string { return "fake" }
func (f *fakeProvider) Dimensions() int   { return 4 }

type fakeSearcher struct {
	works []crossref.Work
}

func (f *fakeSearcher) SearchWorks(ctx context.Context, query string, limit int) ([]crossref.Work, error) {
	if limit < len(f.works) {
		return f.works[:limit], nil
	}
	return f.works, nil
}

func newIngestor(t *testing.T, provider *fakeProvider, search Searcher) (*Ingestor, *storage.DB) {
	t.Helper()
	db, err := storage.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CreateCollection(&paper.Collection{ID: "coll-1", Title: "test"}); err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	vec := vector.NewStore(t.TempDir(), "fake", 4)
	in := New(db, resolve.NewResolver(db), lexical.NewIndex(db), vec, provider, search)
	return in, db
}

func sampleExtraction() *tei.Extraction {
	return &tei.Extraction{
		Title:    "Hybrid Retrieval for Scholarly Search",
		DOI:      "10.1000/hybrid",
		Year:     2021,
		Abstract: "We combine lexical and vector retrieval with rank fusion.",
		Authors: []tei.Author{
			{Name: "Jane Roe", Affiliation: "Example University"},
			{Name: "John Doe"},
		},
		Sections: []tei.Section{
			{Name: "abstract", Text: "We combine lexical and vector retrieval with rank fusion."},
			{Name: "introduction", Text: "Scholarly search benefits from complementary signals."},
		},
		References: []tei.Reference{
			{DOI: "10.1000/ref1", Year: 2009},
			{Title: "Dense Passage Retrieval", Year: 2020},
		},
	}
}

func TestIngestExtraction(t *testing.T) {
	in, db := newIngestor(t, &fakeProvider{}, nil)

	res, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "/tmp/paper.pdf")
	if err != nil {
		t.Fatalf("IngestExtraction failed: %v", err)
	}

	if !res.Created || res.Strategy != resolve.MatchCreated {
		t.Errorf("Created = %v, Strategy = %q", res.Created, res.Strategy)
	}
	if res.AuthorsLinked != 2 {
		t.Errorf("AuthorsLinked = %d, want 2", res.AuthorsLinked)
	}
	if res.CitationsFound != 2 {
		t.Errorf("CitationsFound = %d, want 2", res.CitationsFound)
	}
	if res.ChunksCreated != 2 {
		t.Errorf("ChunksCreated = %d, want 2", res.ChunksCreated)
	}

	p, err := db.GetPaper(res.PaperID)
	if err != nil {
		t.Fatalf("GetPaper failed: %v", err)
	}
	if p.NormDOI != "10.1000/hybrid" {
		t.Errorf("NormDOI = %q", p.NormDOI)
	}
	if p.PDFPath != "/tmp/paper.pdf" {
		t.Errorf("PDFPath = %q", p.PDFPath)
	}

	edges, err := db.ListCitations(res.PaperID)
	if err != nil {
		t.Fatalf("ListCitations failed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if edges[1].DstTitle != "Dense Passage Retrieval" {
		t.Errorf("second edge title = %q", edges[1].DstTitle)
	}
}

func TestIngestExtractionIdempotent(t *testing.T) {
	in, db := newIngestor(t, &fakeProvider{}, nil)

	first, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "")
	if err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}

	second, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "")
	if err != nil {
		t.Fatalf("second ingestion failed: %v", err)
	}

	if second.Created {
		t.Error("re-ingestion created a duplicate paper")
	}
	if second.PaperID != first.PaperID {
		t.Errorf("PaperID changed: %q vs %q", first.PaperID, second.PaperID)
	}
	if second.ChunksCreated != 0 {
		t.Errorf("ChunksCreated = %d, want 0 for unchanged sections", second.ChunksCreated)
	}
	if second.SectionsUnchanged != 2 {
		t.Errorf("SectionsUnchanged = %d, want 2", second.SectionsUnchanged)
	}

	if second.CitationsFound != 0 {
		t.Errorf("CitationsFound = %d, want 0 on re-ingestion", second.CitationsFound)
	}
	edges, err := db.ListCitations(first.PaperID)
	if err != nil {
		t.Fatalf("ListCitations failed: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("got %d edges after re-ingestion, want 2", len(edges))
	}
}

func TestIngestExtractionChangedSection(t *testing.T) {
	in, db := newIngestor(t, &fakeProvider{}, nil)

	ex := sampleExtraction()
	first, err := in.IngestExtraction(context.Background(), "coll-1", ex, "")
	if err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}

	ex.Sections[1].Text = "A fully rewritten introduction with different content."
	second, err := in.IngestExtraction(context.Background(), "coll-1", ex, "")
	if err != nil {
		t.Fatalf("second ingestion failed: %v", err)
	}

	if second.SectionsUnchanged != 1 {
		t.Errorf("SectionsUnchanged = %d, want 1", second.SectionsUnchanged)
	}
	if second.ChunksRemoved != 1 || second.ChunksCreated != 1 {
		t.Errorf("ChunksRemoved = %d, ChunksCreated = %d, want 1 and 1", second.ChunksRemoved, second.ChunksCreated)
	}

	chunks, err := db.ListChunks(first.PaperID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestIngestExtractionEmbeddingOutage(t *testing.T) {
	in, _ := newIngestor(t, &fakeProvider{fail: true}, nil)

	res, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "")
	if err != nil {
		t.Fatalf("ingestion should survive an embedding outage, got %v", err)
	}
	if res.EmbeddingsSkipped != 2 {
		t.Errorf("EmbeddingsSkipped = %d, want 2", res.EmbeddingsSkipped)
	}

	// Chunks are still lexically searchable.
	hits, err := in.lexical.Search("coll-1", "rank fusion", 10)
	if err != nil {
		t.Fatalf("lexical search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Error("no lexical hits after embedding outage")
	}
}

func TestIngestTopic(t *testing.T) {
	search := &fakeSearcher{works: []crossref.Work{
		{
			DOI: "10.2/topic1", Title: "Topic Paper One", Year: 2019,
			Abstract: "First abstract about retrieval.",
			Authors:  []crossref.WorkAuthor{{Name: "Ada Example"}},
		},
		{DOI: "10.2/topic2", Title: "Topic Paper Two", Year: 2020},
	}}
	in, db := newIngestor(t, &fakeProvider{}, search)

	res, err := in.IngestTopic(context.Background(), "coll-1", "retrieval", 10)
	if err != nil {
		t.Fatalf("IngestTopic failed: %v", err)
	}
	if res.PapersCreated != 2 {
		t.Errorf("PapersCreated = %d, want 2", res.PapersCreated)
	}
	if res.ChunksCreated != 1 {
		t.Errorf("ChunksCreated = %d, want 1 (only one work has an abstract)", res.ChunksCreated)
	}

	p, err := db.FindPaperByDOI("coll-1", "10.2/topic1")
	if err != nil || p == nil {
		t.Fatalf("topic paper missing: %v", err)
	}
	if p.AddedVia != paper.AddedViaTopic {
		t.Errorf("AddedVia = %q, want %q", p.AddedVia, paper.AddedViaTopic)
	}

	// A second run matches the same papers instead of duplicating them.
	again, err := in.IngestTopic(context.Background(), "coll-1", "retrieval", 10)
	if err != nil {
		t.Fatalf("second IngestTopic failed: %v", err)
	}
	if again.PapersCreated != 0 || again.PapersMatched != 2 {
		t.Errorf("second run created %d / matched %d, want 0 / 2", again.PapersCreated, again.PapersMatched)
	}
}

func TestIndexDiscoveredPaper(t *testing.T) {
	in, db := newIngestor(t, &fakeProvider{}, nil)

	p := &paper.Paper{
		ID:           "disc-1",
		CollectionID: "coll-1",
		Title:        "Discovered Work",
		NormTitle:    "discovered work",
		Abstract:     "An abstract found during graph expansion.",
		Source:       paper.SourceCrossref,
		AddedVia:     paper.AddedViaGraph,
	}
	if err := db.CreatePaper(p); err != nil {
		t.Fatalf("creating paper: %v", err)
	}

	if err := in.IndexDiscoveredPaper(context.Background(), p, nil); err != nil {
		t.Fatalf("IndexDiscoveredPaper failed: %v", err)
	}

	chunks, err := db.ListChunks(p.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Section != "abstract" {
		t.Fatalf("chunks = %+v, want one abstract chunk", chunks)
	}
}

func TestReindexCollectionRepairsVectors(t *testing.T) {
	outage := &fakeProvider{fail: true}
	in, _ := newIngestor(t, outage, nil)

	res, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "/tmp/paper.pdf")
	if err != nil {
		t.Fatalf("IngestExtraction failed: %v", err)
	}
	if res.EmbeddingsSkipped != 2 {
		t.Fatalf("EmbeddingsSkipped = %d, want 2", res.EmbeddingsSkipped)
	}

	// Service recovers; the reindex pass picks up the stranded chunks.
	in.provider = &fakeProvider{}
	rep, err := in.ReindexCollection(context.Background(), "coll-1")
	if err != nil {
		t.Fatalf("ReindexCollection failed: %v", err)
	}
	if rep.PapersVisited != 1 || rep.ChunksEmbedded != 2 || rep.EmbeddingsFailed != 0 {
		t.Errorf("report = %+v, want 1 paper, 2 chunks, 0 failures", rep)
	}

	hits, err := in.vectors.Search("coll-1", []float32{50, 1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("vector search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("vector hits = %d, want both chunks embedded", len(hits))
	}
}

func TestReindexCollectionOutagePersists(t *testing.T) {
	in, _ := newIngestor(t, &fakeProvider{fail: true}, nil)

	if _, err := in.IngestExtraction(context.Background(), "coll-1", sampleExtraction(), "/tmp/paper.pdf"); err != nil {
		t.Fatalf("IngestExtraction failed: %v", err)
	}

	rep, err := in.ReindexCollection(context.Background(), "coll-1")
	if err != nil {
		t.Fatalf("ReindexCollection failed: %v", err)
	}
	if rep.ChunksEmbedded != 0 || rep.EmbeddingsFailed != 2 {
		t.Errorf("report = %+v, want 0 embedded, 2 failed", rep)
	}
}

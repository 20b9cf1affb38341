package storage

import (
	"errors"
	"testing"

	"github.com/citeweave/citeweave/internal/paper"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testCollection(t *testing.T, db *DB, id string) {
	t.Helper()
	if err := db.CreateCollection(&paper.Collection{ID: id, Title: "test " + id}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
}

func testPaper(id, collectionID, normDOI, title string, year int) *paper.Paper {
	return &paper.Paper{
		ID:           id,
		CollectionID: collectionID,
		DOI:          normDOI,
		NormDOI:      normDOI,
		Title:        title,
		NormTitle:    title,
		Year:         year,
		Source:       paper.SourceUpload,
		AddedVia:     paper.AddedViaUpload,
	}
}

func TestCreateAndGetPaper(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")

	p := testPaper("p1", "c1", "10.1000/x", "hybrid retrieval", 2021)
	p.Abstract = "an abstract"
	p.Venue = "JIR"
	if err := db.CreatePaper(p); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	got, err := db.GetPaper("p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if got.Title != "hybrid retrieval" || got.Year != 2021 || got.Abstract != "an abstract" || got.Venue != "JIR" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt == "" {
		t.Error("CreatedAt not set")
	}

	if _, err := db.GetPaper("missing"); !IsNotFound(err) {
		t.Errorf("GetPaper(missing) = %v, want ErrNotFound", err)
	}
}

func TestPaperDOIUniquePerCollection(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	testCollection(t, db, "c2")

	if err := db.CreatePaper(testPaper("p1", "c1", "10.1/a", "first", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	// Same DOI in the same collection conflicts.
	err := db.CreatePaper(testPaper("p2", "c1", "10.1/a", "other title", 2021))
	if !IsConflict(err) {
		t.Errorf("duplicate DOI in collection = %v, want conflict", err)
	}

	// Same DOI in a different collection is fine.
	if err := db.CreatePaper(testPaper("p3", "c2", "10.1/a", "first", 2020)); err != nil {
		t.Errorf("same DOI in other collection: %v", err)
	}

	// Papers without DOIs never collide on the DOI index.
	if err := db.CreatePaper(testPaper("p4", "c1", "", "no doi a", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreatePaper(testPaper("p5", "c1", "", "no doi b", 2020)); err != nil {
		t.Errorf("second DOI-less paper: %v", err)
	}
}

func TestPaperTitleYearUnique(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")

	if err := db.CreatePaper(testPaper("p1", "c1", "", "shared title", 2019)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	// Same title/year with no DOI conflicts.
	err := db.CreatePaper(testPaper("p2", "c1", "", "shared title", 2019))
	if !IsConflict(err) {
		t.Errorf("duplicate title/year = %v, want conflict", err)
	}

	// Same title/year with a distinct DOI is a different work.
	if err := db.CreatePaper(testPaper("p3", "c1", "10.1/b", "shared title", 2019)); err != nil {
		t.Errorf("same title/year, distinct DOI: %v", err)
	}

	// Same title, different year is a different work.
	if err := db.CreatePaper(testPaper("p4", "c1", "", "shared title", 2021)); err != nil {
		t.Errorf("same title, different year: %v", err)
	}
}

func TestFindPaper(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	testCollection(t, db, "c2")

	if err := db.CreatePaper(testPaper("p1", "c1", "10.1/a", "findable", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreatePaper(testPaper("p2", "c1", "", "yearless", 0)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	got, err := db.FindPaperByDOI("c1", "10.1/a")
	if err != nil || got == nil || got.ID != "p1" {
		t.Errorf("FindPaperByDOI = %v, %v; want p1", got, err)
	}
	if got, _ := db.FindPaperByDOI("c2", "10.1/a"); got != nil {
		t.Errorf("FindPaperByDOI in wrong collection = %v, want nil", got)
	}
	if got, _ := db.FindPaperByDOI("c1", ""); got != nil {
		t.Errorf("FindPaperByDOI with empty DOI = %v, want nil", got)
	}

	got, err = db.FindPaperByTitleYear("c1", "findable", 2020)
	if err != nil || got == nil || got.ID != "p1" {
		t.Errorf("FindPaperByTitleYear = %v, %v; want p1", got, err)
	}
	if got, _ := db.FindPaperByTitleYear("c1", "findable", 2019); got != nil {
		t.Errorf("FindPaperByTitleYear wrong year = %v, want nil", got)
	}

	// Year 0 matches papers whose year is unknown.
	got, err = db.FindPaperByTitleYear("c1", "yearless", 0)
	if err != nil || got == nil || got.ID != "p2" {
		t.Errorf("FindPaperByTitleYear(year 0) = %v, %v; want p2", got, err)
	}

	got, err = db.FindPaperByDOIAnyCollection("10.1/a")
	if err != nil || got == nil || got.ID != "p1" {
		t.Errorf("FindPaperByDOIAnyCollection = %v, %v; want p1", got, err)
	}
}

func TestEnrichPaperFillsOnlyEmptyFields(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")

	p := testPaper("p1", "c1", "", "enrich me", 0)
	p.Abstract = "original abstract"
	if err := db.CreatePaper(p); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	incoming := &paper.Paper{
		DOI:      "10.1/new",
		NormDOI:  "10.1/new",
		Abstract: "replacement abstract",
		Year:     2018,
		Venue:    "NewVenue",
	}
	if err := db.EnrichPaper("p1", incoming); err != nil {
		t.Fatalf("EnrichPaper: %v", err)
	}

	got, err := db.GetPaper("p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if got.NormDOI != "10.1/new" || got.Year != 2018 || got.Venue != "NewVenue" {
		t.Errorf("empty fields not filled: %+v", got)
	}
	if got.Abstract != "original abstract" {
		t.Errorf("Abstract = %q, populated field was overwritten", got.Abstract)
	}

	if err := db.EnrichPaper("missing", incoming); !IsNotFound(err) {
		t.Errorf("EnrichPaper(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteCollectionCascades(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")

	if err := db.CreatePaper(testPaper("p1", "c1", "10.1/a", "doomed", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.UpsertChunk("c1", &paper.Chunk{
		ID: "ch1", PaperID: "p1", Section: "body", Ord: 0, Text: "text", SectionHash: "h",
	}); err != nil {
		t.Fatalf("UpsertChunk: %v", err)
	}
	if err := db.CreateCitation(&paper.Citation{ID: "e1", SrcPaperID: "p1", DstDOI: "10.1/b"}); err != nil {
		t.Fatalf("CreateCitation: %v", err)
	}

	if err := db.DeleteCollection("c1"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}

	if _, err := db.GetPaper("p1"); !IsNotFound(err) {
		t.Errorf("paper survived collection delete: %v", err)
	}
	if _, err := db.GetChunk("ch1"); !IsNotFound(err) {
		t.Errorf("chunk survived collection delete: %v", err)
	}
	edges, err := db.ListCitations("p1")
	if err != nil {
		t.Fatalf("ListCitations: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("citations survived collection delete: %d", len(edges))
	}
}

func TestCitationDOIDedupPreservesResolution(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	if err := db.CreatePaper(testPaper("p1", "c1", "", "src", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreatePaper(testPaper("p2", "c1", "10.1/t", "dst", 2018)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	if err := db.CreateCitation(&paper.Citation{ID: "e1", SrcPaperID: "p1", DstDOI: "10.1/t"}); err != nil {
		t.Fatalf("CreateCitation: %v", err)
	}
	if err := db.ResolveCitation("e1", "p2"); err != nil {
		t.Fatalf("ResolveCitation: %v", err)
	}

	// A second edge to the same DOI is silently dropped.
	if err := db.CreateCitation(&paper.Citation{ID: "e2", SrcPaperID: "p1", DstDOI: "10.1/t"}); err != nil {
		t.Fatalf("CreateCitation dup: %v", err)
	}

	edges, err := db.ListCitations("p1")
	if err != nil {
		t.Fatalf("ListCitations: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(edges))
	}
	if edges[0].ID != "e1" || edges[0].ResolvedPaperID != "p2" {
		t.Errorf("edge = %+v, want e1 resolved to p2", edges[0])
	}
}

func TestResolveCitationWritesOnce(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := db.CreatePaper(testPaper(id, "c1", "", "paper "+id, 2020)); err != nil {
			t.Fatalf("CreatePaper: %v", err)
		}
	}
	if err := db.CreateCitation(&paper.Citation{ID: "e1", SrcPaperID: "p1", DstTitle: "paper p2"}); err != nil {
		t.Fatalf("CreateCitation: %v", err)
	}

	if err := db.ResolveCitation("e1", "p2"); err != nil {
		t.Fatalf("ResolveCitation: %v", err)
	}
	// A later resolution attempt must not displace the first.
	if err := db.ResolveCitation("e1", "p3"); err != nil {
		t.Fatalf("ResolveCitation again: %v", err)
	}

	edges, _ := db.ListCitations("p1")
	if len(edges) != 1 || edges[0].ResolvedPaperID != "p2" {
		t.Errorf("edge = %+v, want resolution to p2 intact", edges)
	}
}

func TestCountResolvedCitations(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	if err := db.CreatePaper(testPaper("p1", "c1", "", "src", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreatePaper(testPaper("p2", "c1", "10.1/t", "dst", 2018)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreateCitation(&paper.Citation{ID: "e1", SrcPaperID: "p1", DstDOI: "10.1/t", ResolvedPaperID: "p2"}); err != nil {
		t.Fatalf("CreateCitation: %v", err)
	}
	if err := db.CreateCitation(&paper.Citation{ID: "e2", SrcPaperID: "p1", DstTitle: "unknown work"}); err != nil {
		t.Fatalf("CreateCitation: %v", err)
	}

	resolved, total, err := db.CountResolvedCitations("c1")
	if err != nil {
		t.Fatalf("CountResolvedCitations: %v", err)
	}
	if resolved != 1 || total != 2 {
		t.Errorf("resolved/total = %d/%d, want 1/2", resolved, total)
	}
}

func TestAuthorIdentityAndLinking(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	if err := db.CreatePaper(testPaper("p1", "c1", "", "bylines", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	a := &paper.Author{ID: "a1", Name: "Jane Roe", NormName: "jane roe", NormAffiliation: "mit"}
	if err := db.CreateAuthor(a); err != nil {
		t.Fatalf("CreateAuthor: %v", err)
	}

	// Same identity tuple conflicts.
	dup := &paper.Author{ID: "a2", Name: "Jane Roe", NormName: "jane roe", NormAffiliation: "mit"}
	if err := db.CreateAuthor(dup); !IsConflict(err) {
		t.Errorf("duplicate author = %v, want conflict", err)
	}

	// A blank affiliation is a distinct identity.
	blank := &paper.Author{ID: "a3", Name: "Jane Roe", NormName: "jane roe"}
	if err := db.CreateAuthor(blank); err != nil {
		t.Errorf("blank-affiliation author: %v", err)
	}

	got, err := db.FindAuthor("jane roe", "mit")
	if err != nil || got == nil || got.ID != "a1" {
		t.Errorf("FindAuthor = %v, %v; want a1", got, err)
	}

	if err := db.LinkAuthor("p1", "a1", 1); err != nil {
		t.Fatalf("LinkAuthor: %v", err)
	}
	if err := db.LinkAuthor("p1", "a3", 2); err != nil {
		t.Fatalf("LinkAuthor: %v", err)
	}
	// Relinking updates the position instead of erroring.
	if err := db.LinkAuthor("p1", "a3", 0); err != nil {
		t.Fatalf("LinkAuthor relink: %v", err)
	}

	authors, err := db.ListPaperAuthors("p1")
	if err != nil {
		t.Fatalf("ListPaperAuthors: %v", err)
	}
	if len(authors) != 2 || authors[0].ID != "a3" || authors[1].ID != "a1" {
		t.Errorf("byline order = %v, want [a3 a1]", authorIDs(authors))
	}
}

func authorIDs(authors []paper.Author) []string {
	ids := make([]string, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	return ids
}

func TestChunkLifecycle(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	if err := db.CreatePaper(testPaper("p1", "c1", "", "chunked", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}

	for i, text := range []string{"alpha text", "beta text"} {
		c := &paper.Chunk{
			ID: "ch" + string(rune('1'+i)), PaperID: "p1", Section: "body",
			Ord: i, Text: text, SectionHash: "h1",
		}
		if err := db.UpsertChunk("c1", c); err != nil {
			t.Fatalf("UpsertChunk: %v", err)
		}
	}

	hashes, err := db.SectionHashes("p1")
	if err != nil {
		t.Fatalf("SectionHashes: %v", err)
	}
	if hashes["body"] != "h1" {
		t.Errorf("SectionHashes = %v, want body:h1", hashes)
	}

	// Re-upserting a chunk replaces its text and FTS row.
	if err := db.UpsertChunk("c1", &paper.Chunk{
		ID: "ch1", PaperID: "p1", Section: "body", Ord: 0, Text: "gamma text", SectionHash: "h2",
	}); err != nil {
		t.Fatalf("UpsertChunk replace: %v", err)
	}
	hits, err := db.SearchChunkFTS("c1", "gamma", 10)
	if err != nil {
		t.Fatalf("SearchChunkFTS: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "ch1" {
		t.Errorf("search for replaced text = %v, want ch1", hits)
	}
	if hits, _ := db.SearchChunkFTS("c1", "alpha", 10); len(hits) != 0 {
		t.Errorf("stale FTS row survived replacement: %v", hits)
	}

	got, err := db.ChunkCollectionID("ch1")
	if err != nil || got != "c1" {
		t.Errorf("ChunkCollectionID = %q, %v; want c1", got, err)
	}

	ids, err := db.DeleteSectionChunks("p1", "body")
	if err != nil {
		t.Fatalf("DeleteSectionChunks: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("removed IDs = %v, want 2", ids)
	}
	if hits, _ := db.SearchChunkFTS("c1", "gamma", 10); len(hits) != 0 {
		t.Errorf("FTS rows survived section delete: %v", hits)
	}
}

func TestSearchChunkFTSScopedByCollection(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")
	testCollection(t, db, "c2")
	if err := db.CreatePaper(testPaper("p1", "c1", "", "one", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.CreatePaper(testPaper("p2", "c2", "", "two", 2020)); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if err := db.UpsertChunk("c1", &paper.Chunk{ID: "ch1", PaperID: "p1", Section: "body", Text: "shared phrase here", SectionHash: "h"}); err != nil {
		t.Fatalf("UpsertChunk: %v", err)
	}
	if err := db.UpsertChunk("c2", &paper.Chunk{ID: "ch2", PaperID: "p2", Section: "body", Text: "shared phrase there", SectionHash: "h"}); err != nil {
		t.Fatalf("UpsertChunk: %v", err)
	}

	hits, err := db.SearchChunkFTS("c1", "shared", 10)
	if err != nil {
		t.Fatalf("SearchChunkFTS: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "ch1" {
		t.Errorf("hits = %v, want only ch1", hits)
	}
}

func TestJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	testCollection(t, db, "c1")

	j := &Job{ID: "j1", CollectionID: "c1", Type: "graph_build"}
	if err := db.CreateJob(j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if j.State != JobPending {
		t.Errorf("initial state = %q, want PENDING", j.State)
	}

	if err := db.UpdateJobState("j1", JobRunning, ""); err != nil {
		t.Fatalf("UpdateJobState: %v", err)
	}
	if err := db.UpdateJobState("j1", JobCompleted, `{"ok":true}`); err != nil {
		t.Fatalf("UpdateJobState: %v", err)
	}

	got, err := db.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != JobCompleted || got.Detail != `{"ok":true}` {
		t.Errorf("job = %+v, want completed with detail", got)
	}

	jobs, err := db.ListJobs("c1")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("ListJobs = %v, want [j1]", jobs)
	}

	if _, err := db.GetJob("missing"); !IsNotFound(err) {
		t.Errorf("GetJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestIsConflict(t *testing.T) {
	if IsConflict(nil) {
		t.Error("IsConflict(nil) = true")
	}
	if !IsConflict(ErrConflict) {
		t.Error("IsConflict(ErrConflict) = false")
	}
	if IsConflict(errors.New("something else")) {
		t.Error("IsConflict(other) = true")
	}
}

package viz

import (
	"strings"
	"testing"

	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/storage"
)

func buildFixture(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CreateCollection(&paper.Collection{ID: "c1", Title: "test"}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	// seed cites found (resolved) and one unresolved reference; found was
	// discovered by graph expansion.
	papers := []*paper.Paper{
		{ID: "seed", CollectionID: "c1", Title: "Seed Paper", NormTitle: "seed paper",
			Year: 2021, Source: paper.SourceUpload, AddedVia: paper.AddedViaUpload},
		{ID: "found", CollectionID: "c1", Title: "Discovered Paper", NormTitle: "discovered paper",
			Year: 2018, Source: paper.SourceCrossref, AddedVia: paper.AddedViaGraph},
	}
	for _, p := range papers {
		if err := db.CreatePaper(p); err != nil {
			t.Fatalf("CreatePaper: %v", err)
		}
	}

	edges := []*paper.Citation{
		{ID: "e1", SrcPaperID: "seed", DstDOI: "10.1/found", ResolvedPaperID: "found"},
		{ID: "e2", SrcPaperID: "seed", DstTitle: "never resolved"},
	}
	for _, e := range edges {
		if err := db.CreateCitation(e); err != nil {
			t.Fatalf("CreateCitation: %v", err)
		}
	}
	return db
}

func TestBuildGraph(t *testing.T) {
	db := buildFixture(t)

	g, err := BuildGraph(db, "c1")
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %v, want the single resolved edge", g.Edges)
	}
	if g.Edges[0].Source != "seed" || g.Edges[0].Target != "found" {
		t.Errorf("edge = %+v, want seed->found", g.Edges[0])
	}

	byID := make(map[string]Node)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	if n := byID["seed"]; n.Citations != 1 || n.CitedBy != 0 {
		t.Errorf("seed counts = %d/%d, want 1/0", n.Citations, n.CitedBy)
	}
	if n := byID["found"]; n.Citations != 0 || n.CitedBy != 1 {
		t.Errorf("found counts = %d/%d, want 0/1", n.Citations, n.CitedBy)
	}
}

func TestBuildGraphEmptyCollection(t *testing.T) {
	db, err := storage.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()
	if err := db.CreateCollection(&paper.Collection{ID: "empty", Title: "empty"}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	g, err := BuildGraph(db, "empty")
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if !g.IsEmpty() {
		t.Errorf("graph = %+v, want empty", g)
	}
}

func TestToDOT(t *testing.T) {
	db := buildFixture(t)
	g, err := BuildGraph(db, "c1")
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	dot := g.ToDOT()
	for _, want := range []string{
		"digraph citations {",
		`"seed" [label="Seed Paper\n(2021)"];`,
		`"found" [label="Discovered Paper\n(2018)", style=dashed];`,
		`"seed" -> "found";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

// Package viz renders a collection's citation graph for external tools,
// either as plain graph data or as Graphviz DOT.
package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/storage"
)

// GraphData is a collection's citation graph in node/edge form.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one paper in the graph.
type Node struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	DOI      string `json:"doi,omitempty"`
	AddedVia string `json:"added_via"`

	// Citations counts resolved edges out of this paper; CitedBy counts
	// resolved edges into it from within the collection.
	Citations int `json:"citations"`
	CitedBy   int `json:"cited_by"`
}

// Edge is one resolved citation between two papers in the collection.
// Unresolved citations have no target node and are not part of the graph.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// IsEmpty returns true if the graph has no nodes.
func (g *GraphData) IsEmpty() bool {
	return len(g.Nodes) == 0
}

// BuildGraph assembles the resolved citation graph of a collection.
func BuildGraph(db *storage.DB, collectionID string) (*GraphData, error) {
	papers, err := db.ListPapers(collectionID)
	if err != nil {
		return nil, err
	}

	inCollection := make(map[string]int, len(papers)) // paper ID -> node index
	g := &GraphData{Nodes: make([]Node, 0, len(papers))}
	for _, p := range papers {
		inCollection[p.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{
			ID:       p.ID,
			Title:    p.Title,
			Year:     p.Year,
			DOI:      p.DOI,
			AddedVia: p.AddedVia,
		})
	}

	for _, p := range papers {
		edges, err := db.ListCitations(p.ID)
		if err != nil {
			return nil, fmt.Errorf("listing citations of %s: %w", p.ID, err)
		}
		for _, e := range edges {
			target, ok := inCollection[e.ResolvedPaperID]
			if !e.Resolved() || !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{Source: p.ID, Target: e.ResolvedPaperID})
			g.Nodes[inCollection[p.ID]].Citations++
			g.Nodes[target].CitedBy++
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g, nil
}

// ToDOT renders the graph in Graphviz DOT format. Node labels carry the
// title and year; papers discovered by graph expansion are drawn dashed to
// distinguish them from directly ingested ones.
func (g *GraphData) ToDOT() string {
	var b strings.Builder
	b.WriteString("digraph citations {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontsize=10];\n")

	for _, n := range g.Nodes {
		label := dotEscape(n.Title)
		if len(label) > 40 {
			label = label[:37] + "..."
		}
		// \n is a DOT line break, not a Go one.
		if n.Year > 0 {
			label = fmt.Sprintf(`%s\n(%d)`, label, n.Year)
		}
		attrs := fmt.Sprintf(`label="%s"`, label)
		if n.AddedVia == paper.AddedViaGraph {
			attrs += ", style=dashed"
		}
		b.WriteString(fmt.Sprintf("  %q [%s];\n", n.ID, attrs))
	}
	for _, e := range g.Edges {
		b.WriteString(fmt.Sprintf("  %q -> %q;\n", e.Source, e.Target))
	}

	b.WriteString("}\n")
	return b.String()
}

// dotEscape makes a string safe inside a double-quoted DOT attribute.
func dotEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

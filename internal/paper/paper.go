// Package paper defines the core domain types for collections of scholarly works.
package paper

import "errors"

// Source values record where a paper's metadata originally came from.
const (
	SourceUpload   = "upload"
	SourceCrossref = "crossref"
)

// AddedVia values record which ingestion path created a paper.
const (
	AddedViaUpload = "upload"
	AddedViaTopic  = "topic"
	AddedViaGraph  = "graph"
)

// Collection groups papers for per-collection indexing and graph building.
type Collection struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Paper represents a scholarly work scoped to one collection.
//
// Within a collection no two papers may share the same non-empty normalized
// DOI, nor the same (normalized title, year) pair. Both constraints are
// enforced by the storage layer; the resolver is the fast path.
type Paper struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`

	// DOI is the identifier as received; NormDOI is the comparison form.
	DOI     string `json:"doi,omitempty"`
	NormDOI string `json:"norm_doi,omitempty"`

	Title     string `json:"title"`
	NormTitle string `json:"norm_title"`

	Abstract string `json:"abstract,omitempty"`
	Year     int    `json:"year,omitempty"` // 0 = unknown
	Venue    string `json:"venue,omitempty"`
	URL      string `json:"url,omitempty"`
	PDFPath  string `json:"pdf_path,omitempty"`

	Source   string `json:"source"`
	AddedVia string `json:"added_via"`

	CreatedAt string `json:"created_at,omitempty"`
}

// Author represents a paper author, shared across papers.
//
// Identity is the (NormName, NormAffiliation) pair. An absent affiliation is
// the empty string and is a distinct identity from any present affiliation.
type Author struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NormName        string `json:"norm_name"`
	Affiliation     string `json:"affiliation,omitempty"`
	NormAffiliation string `json:"norm_affiliation,omitempty"`
}

// PaperAuthor links an author to a paper at a byline position.
// The position is owned by the paper, never by the author.
type PaperAuthor struct {
	PaperID  string `json:"paper_id"`
	AuthorID string `json:"author_id"`
	Order    int    `json:"order"`
}

// Citation is a directed edge from a paper to a referenced work.
//
// Edges with a normalized destination DOI are unique per (source, DOI).
// Edges without a DOI carry a denormalized title/year used for resolution.
// ResolvedPaperID is set at most once; re-resolution is never retried.
type Citation struct {
	ID              string `json:"id"`
	SrcPaperID      string `json:"src_paper_id"`
	DstDOI          string `json:"dst_doi,omitempty"` // normalized, "" = none
	DstTitle        string `json:"dst_title,omitempty"`
	DstYear         int    `json:"dst_year,omitempty"`
	ResolvedPaperID string `json:"resolved_paper_id,omitempty"`
}

// Resolved reports whether the edge has been matched to a paper record.
func (c *Citation) Resolved() bool {
	return c.ResolvedPaperID != ""
}

// Chunk is a bounded span of a paper's text, the unit of retrieval.
//
// SectionHash is the stable content hash of the source section; re-ingestion
// only regenerates chunks whose section content changed.
type Chunk struct {
	ID          string `json:"id"`
	PaperID     string `json:"paper_id"`
	Section     string `json:"section"`
	Ord         int    `json:"ord"`
	Text        string `json:"text"`
	SectionHash string `json:"section_hash"`
}

// Validation errors.
var (
	ErrEmptyTitle        = errors.New("title is required")
	ErrEmptyCollectionID = errors.New("collection_id is required")
	ErrEmptySource       = errors.New("source is required")
	ErrSelfCitation      = errors.New("a paper cannot cite itself")
)

// ValidateForCreate validates a paper for creation.
func (p *Paper) ValidateForCreate() error {
	if p.CollectionID == "" {
		return ErrEmptyCollectionID
	}
	if p.Title == "" {
		return ErrEmptyTitle
	}
	if p.Source == "" {
		return ErrEmptySource
	}
	return nil
}

// ValidateForCreate validates a citation edge for creation.
func (c *Citation) ValidateForCreate() error {
	if c.SrcPaperID == "" {
		return errors.New("src_paper_id is required")
	}
	if c.SrcPaperID == c.ResolvedPaperID && c.ResolvedPaperID != "" {
		return ErrSelfCitation
	}
	return nil
}

// Package resolve decides whether an incoming paper or author record matches
// an existing entity or warrants a new one. Matching strategies are applied
// in strict priority order (DOI, then title/year, then create) so the policy
// stays auditable as a plain decision table.
package resolve

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/citeweave/citeweave/internal/identity"
	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/storage"
)

// Match strategies, in priority order.
const (
	MatchDOI       = "doi"
	MatchTitleYear = "title_year"
	MatchCreated   = "created"
)

// ErrConflict is returned when a concurrent write still conflicts after the
// one permitted retry. Reaching it indicates a genuine race.
var ErrConflict = errors.New("resolution conflict after retry")

// Resolver matches candidate records against the paper/author store.
type Resolver struct {
	db *storage.DB
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(db *storage.DB) *Resolver {
	return &Resolver{db: db}
}

// PaperCandidate is an incoming paper record from any ingestion path.
// Fields may be missing; upstream bibliographic data is inherently messy and
// a missing optional field is never an error.
type PaperCandidate struct {
	DOI      string
	Title    string
	Year     int
	Abstract string
	Venue    string
	URL      string
	PDFPath  string
	Source   string // paper.SourceUpload or paper.SourceCrossref
	AddedVia string // paper.AddedViaUpload, AddedViaTopic, or AddedViaGraph
}

// PaperResolution is the outcome of resolving a paper candidate.
type PaperResolution struct {
	Paper    *paper.Paper
	Created  bool
	Strategy string
}

// ResolvePaper finds or creates the paper a candidate refers to within a
// collection. Existing papers are enriched: empty optional fields are filled
// from the candidate, populated fields are never overwritten.
//
// Returns storage.ErrNotFound (wrapped) if the collection does not exist, and
// ErrConflict if a concurrent write still conflicts after one retry.
func (r *Resolver) ResolvePaper(candidate PaperCandidate, collectionID string) (*PaperResolution, error) {
	if _, err := r.db.GetCollection(collectionID); err != nil {
		return nil, err
	}

	res, err := r.resolvePaperOnce(candidate, collectionID)
	if err == nil || !storage.IsConflict(err) {
		return res, err
	}

	// A concurrent resolution won the check-then-write race; re-read once.
	// The winner's row now exists, so the lookup path should hit it.
	res, err = r.resolvePaperOnce(candidate, collectionID)
	if err != nil && storage.IsConflict(err) {
		return nil, fmt.Errorf("resolving paper %q: %w", candidate.Title, ErrConflict)
	}
	return res, err
}

func (r *Resolver) resolvePaperOnce(candidate PaperCandidate, collectionID string) (*PaperResolution, error) {
	normDOI := identity.NormalizeDOI(candidate.DOI)
	normTitle := identity.NormalizeTitle(candidate.Title)
	incoming := r.record(candidate, collectionID, normDOI, normTitle)

	// Strategy 1: DOI match.
	if normDOI != "" {
		existing, err := r.db.FindPaperByDOI(collectionID, normDOI)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return r.enriched(existing, incoming, MatchDOI)
		}
	}

	// Strategy 2: exact (normalized title, year) match. A hit that carries a
	// different non-empty DOI than the candidate is a distinct work sharing
	// a title, not a match: DOI identity takes precedence.
	if normTitle != "" {
		existing, err := r.db.FindPaperByTitleYear(collectionID, normTitle, candidate.Year)
		if err != nil {
			return nil, err
		}
		if existing != nil && !(normDOI != "" && existing.NormDOI != "" && existing.NormDOI != normDOI) {
			return r.enriched(existing, incoming, MatchTitleYear)
		}
	}

	// Strategy 3: create.
	if err := r.db.CreatePaper(incoming); err != nil {
		return nil, err
	}
	return &PaperResolution{Paper: incoming, Created: true, Strategy: MatchCreated}, nil
}

// record builds the paper row a candidate would create.
func (r *Resolver) record(c PaperCandidate, collectionID, normDOI, normTitle string) *paper.Paper {
	return &paper.Paper{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		DOI:          c.DOI,
		NormDOI:      normDOI,
		Title:        c.Title,
		NormTitle:    normTitle,
		Abstract:     c.Abstract,
		Year:         c.Year,
		Venue:        c.Venue,
		URL:          c.URL,
		PDFPath:      c.PDFPath,
		Source:       c.Source,
		AddedVia:     c.AddedVia,
	}
}

// enriched fills the existing paper's empty fields from incoming data and
// returns the refreshed row.
func (r *Resolver) enriched(existing, incoming *paper.Paper, strategy string) (*PaperResolution, error) {
	if err := r.db.EnrichPaper(existing.ID, incoming); err != nil {
		return nil, err
	}
	refreshed, err := r.db.GetPaper(existing.ID)
	if err != nil {
		return nil, err
	}
	return &PaperResolution{Paper: refreshed, Created: false, Strategy: strategy}, nil
}

// ResolveAuthor finds or creates an author by the exact (normalized name,
// normalized affiliation) identity tuple. An absent affiliation is its own
// identity value; it never fuzzily matches a present one.
func (r *Resolver) ResolveAuthor(name, affiliation string) (*paper.Author, bool, error) {
	normName, normAff := identity.NormalizeAuthor(name, affiliation)
	if normName == "" {
		return nil, false, errors.New("author name is empty after normalization")
	}

	existing, err := r.db.FindAuthor(normName, normAff)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	a := &paper.Author{
		ID:              uuid.New().String(),
		Name:            name,
		NormName:        normName,
		Affiliation:     affiliation,
		NormAffiliation: normAff,
	}
	if err := r.db.CreateAuthor(a); err != nil {
		if storage.IsConflict(err) {
			// Lost the race; the winner's row is the author.
			existing, ferr := r.db.FindAuthor(normName, normAff)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing == nil {
				return nil, false, fmt.Errorf("resolving author %q: %w", name, ErrConflict)
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return a, true, nil
}

// LinkAuthor attaches an author to a paper at the given byline position,
// idempotently: relinking the same pair updates the position.
func (r *Resolver) LinkAuthor(paperID, authorID string, order int) error {
	return r.db.LinkAuthor(paperID, authorID, order)
}

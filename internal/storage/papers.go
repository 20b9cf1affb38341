package storage

import (
	"database/sql"
	"fmt"

	"github.com/citeweave/citeweave/internal/paper"
)

// selectPaperFields is the standard field list for paper SELECT queries.
const selectPaperFields = `id, collection_id, doi, norm_doi, title, norm_title,
	abstract, year, venue, url, pdf_path, source, added_via, created_at`

// CreatePaper inserts a new paper. The caller is expected to have filled the
// normalized identity fields; the unique indexes are the backstop against
// concurrent duplicate creation and surface as ErrConflict.
func (d *DB) CreatePaper(p *paper.Paper) error {
	if err := p.ValidateForCreate(); err != nil {
		return err
	}
	if p.CreatedAt == "" {
		p.CreatedAt = now()
	}

	_, err := d.db.Exec(`
		INSERT INTO papers (
			id, collection_id, doi, norm_doi, title, norm_title,
			abstract, year, venue, url, pdf_path, source, added_via, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CollectionID, nullableString(p.DOI), p.NormDOI, p.Title, p.NormTitle,
		nullableString(p.Abstract), nullableInt(p.Year), nullableString(p.Venue),
		nullableString(p.URL), nullableString(p.PDFPath), p.Source, p.AddedVia, p.CreatedAt,
	)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("paper %q in collection %s: %w", p.Title, p.CollectionID, ErrConflict)
		}
		return fmt.Errorf("inserting paper: %w", err)
	}
	return nil
}

// GetPaper retrieves a paper by ID. Returns ErrNotFound if absent.
func (d *DB) GetPaper(id string) (*paper.Paper, error) {
	row := d.db.QueryRow(`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// FindPaperByDOI finds a paper in a collection by normalized DOI.
// Returns nil (no error) when there is no match.
func (d *DB) FindPaperByDOI(collectionID, normDOI string) (*paper.Paper, error) {
	if normDOI == "" {
		return nil, nil
	}
	row := d.db.QueryRow(
		`SELECT `+selectPaperFields+` FROM papers WHERE collection_id = ? AND norm_doi = ?`,
		collectionID, normDOI,
	)
	return scanPaper(row)
}

// FindPaperByDOIAnyCollection finds any paper with the given normalized DOI
// across collections, used by the graph builder to reuse already-fetched
// metadata before calling the bibliographic service. Deterministic: earliest
// created row wins.
func (d *DB) FindPaperByDOIAnyCollection(normDOI string) (*paper.Paper, error) {
	if normDOI == "" {
		return nil, nil
	}
	row := d.db.QueryRow(
		`SELECT `+selectPaperFields+` FROM papers WHERE norm_doi = ? ORDER BY created_at, id LIMIT 1`,
		normDOI,
	)
	return scanPaper(row)
}

// FindPaperByTitleYear finds a paper in a collection by exact normalized
// title and year match. Year 0 matches papers with unknown year. If several
// papers share the title/year (distinct DOIs), the earliest created wins.
func (d *DB) FindPaperByTitleYear(collectionID, normTitle string, year int) (*paper.Paper, error) {
	if normTitle == "" {
		return nil, nil
	}
	row := d.db.QueryRow(
		`SELECT `+selectPaperFields+` FROM papers
		 WHERE collection_id = ? AND norm_title = ? AND COALESCE(year, 0) = ?
		 ORDER BY created_at, id LIMIT 1`,
		collectionID, normTitle, year,
	)
	return scanPaper(row)
}

// EnrichPaper fills the paper's empty optional fields from incoming data.
// Populated fields are never overwritten: the first successful write is
// authoritative and later partial data must not regress it.
func (d *DB) EnrichPaper(id string, incoming *paper.Paper) error {
	res, err := d.db.Exec(`
		UPDATE papers SET
			doi      = COALESCE(doi, ?),
			norm_doi = CASE WHEN norm_doi = '' THEN ? ELSE norm_doi END,
			abstract = COALESCE(abstract, NULLIF(?, '')),
			year     = COALESCE(year, NULLIF(?, 0)),
			venue    = COALESCE(venue, NULLIF(?, '')),
			url      = COALESCE(url, NULLIF(?, '')),
			pdf_path = COALESCE(pdf_path, NULLIF(?, ''))
		WHERE id = ?`,
		nullableString(incoming.DOI), incoming.NormDOI, incoming.Abstract,
		incoming.Year, incoming.Venue, incoming.URL, incoming.PDFPath, id,
	)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("enriching paper %s: %w", id, ErrConflict)
		}
		return fmt.Errorf("enriching paper: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListPapers returns all papers in a collection ordered by creation time.
func (d *DB) ListPapers(collectionID string) ([]paper.Paper, error) {
	rows, err := d.db.Query(
		`SELECT `+selectPaperFields+` FROM papers WHERE collection_id = ? ORDER BY created_at, id`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// CountPapers returns the number of papers in a collection.
func (d *DB) CountPapers(collectionID string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE collection_id = ?`, collectionID).Scan(&n)
	return n, err
}

// scanner is satisfied by both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(s scanner) (*paper.Paper, error) {
	var p paper.Paper
	var doi, abstract, venue, url, pdfPath sql.NullString
	var year sql.NullInt64

	err := s.Scan(
		&p.ID, &p.CollectionID, &doi, &p.NormDOI, &p.Title, &p.NormTitle,
		&abstract, &year, &venue, &url, &pdfPath, &p.Source, &p.AddedVia, &p.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.DOI = doi.String
	p.Abstract = abstract.String
	p.Venue = venue.String
	p.URL = url.String
	p.PDFPath = pdfPath.String
	if year.Valid {
		p.Year = int(year.Int64)
	}
	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]paper.Paper, error) {
	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers, rows.Err()
}

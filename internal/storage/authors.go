package storage

import (
	"database/sql"
	"fmt"

	"github.com/citeweave/citeweave/internal/paper"
)

// CreateAuthor inserts a new author. The (norm_name, norm_affiliation) unique
// constraint backstops concurrent creation; violations surface as ErrConflict.
func (d *DB) CreateAuthor(a *paper.Author) error {
	_, err := d.db.Exec(`
		INSERT INTO authors (id, name, norm_name, affiliation, norm_affiliation)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.NormName, nullableString(a.Affiliation), a.NormAffiliation,
	)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("author %q: %w", a.Name, ErrConflict)
		}
		return fmt.Errorf("inserting author: %w", err)
	}
	return nil
}

// FindAuthor finds an author by the exact (normalized name, normalized
// affiliation) identity tuple. An empty affiliation only matches authors
// recorded without one. Returns nil (no error) when there is no match.
func (d *DB) FindAuthor(normName, normAffiliation string) (*paper.Author, error) {
	row := d.db.QueryRow(`
		SELECT id, name, norm_name, affiliation, norm_affiliation
		FROM authors WHERE norm_name = ? AND norm_affiliation = ?`,
		normName, normAffiliation,
	)
	return scanAuthor(row)
}

// LinkAuthor inserts or updates the paper-author linkage. Linking the same
// pair again updates the byline position rather than duplicating the row.
func (d *DB) LinkAuthor(paperID, authorID string, order int) error {
	_, err := d.db.Exec(`
		INSERT INTO paper_authors (paper_id, author_id, author_order)
		VALUES (?, ?, ?)
		ON CONFLICT (paper_id, author_id) DO UPDATE SET author_order = excluded.author_order`,
		paperID, authorID, order,
	)
	if err != nil {
		return fmt.Errorf("linking author %s to paper %s: %w", authorID, paperID, err)
	}
	return nil
}

// ListPaperAuthors returns a paper's authors in byline order.
func (d *DB) ListPaperAuthors(paperID string) ([]paper.Author, error) {
	rows, err := d.db.Query(`
		SELECT a.id, a.name, a.norm_name, a.affiliation, a.norm_affiliation
		FROM authors a
		JOIN paper_authors pa ON pa.author_id = a.id
		WHERE pa.paper_id = ?
		ORDER BY pa.author_order, a.id`,
		paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing paper authors: %w", err)
	}
	defer rows.Close()

	var authors []paper.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		if a != nil {
			authors = append(authors, *a)
		}
	}
	return authors, rows.Err()
}

func scanAuthor(s scanner) (*paper.Author, error) {
	var a paper.Author
	var affiliation sql.NullString
	err := s.Scan(&a.ID, &a.Name, &a.NormName, &affiliation, &a.NormAffiliation)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.Affiliation = affiliation.String
	return &a, nil
}

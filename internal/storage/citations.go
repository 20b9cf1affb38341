package storage

import (
	"database/sql"
	"fmt"

	"github.com/citeweave/citeweave/internal/paper"
)

// CreateCitation inserts a citation edge. Inserting a second edge for the
// same (source, destination DOI) pair is a no-op, preserving any resolution
// already recorded on the first edge.
func (d *DB) CreateCitation(c *paper.Citation) error {
	if err := c.ValidateForCreate(); err != nil {
		return err
	}
	_, err := d.db.Exec(`
		INSERT INTO citations (id, src_paper_id, dst_doi, dst_title, dst_year, resolved_paper_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (src_paper_id, dst_doi) WHERE dst_doi != '' DO NOTHING`,
		c.ID, c.SrcPaperID, c.DstDOI, nullableString(c.DstTitle),
		nullableInt(c.DstYear), nullableString(c.ResolvedPaperID),
	)
	if err != nil {
		return fmt.Errorf("inserting citation: %w", err)
	}
	return nil
}

// ListCitations returns all citation edges out of a paper, in insertion
// order. Stable ordering keeps graph traversal reproducible.
func (d *DB) ListCitations(srcPaperID string) ([]paper.Citation, error) {
	rows, err := d.db.Query(`
		SELECT id, src_paper_id, dst_doi, dst_title, dst_year, resolved_paper_id
		FROM citations WHERE src_paper_id = ? ORDER BY rowid`,
		srcPaperID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing citations: %w", err)
	}
	defer rows.Close()

	var edges []paper.Citation
	for rows.Next() {
		var c paper.Citation
		var dstTitle, resolved sql.NullString
		var dstYear sql.NullInt64
		if err := rows.Scan(&c.ID, &c.SrcPaperID, &c.DstDOI, &dstTitle, &dstYear, &resolved); err != nil {
			return nil, err
		}
		c.DstTitle = dstTitle.String
		c.ResolvedPaperID = resolved.String
		if dstYear.Valid {
			c.DstYear = int(dstYear.Int64)
		}
		edges = append(edges, c)
	}
	return edges, rows.Err()
}

// ResolveCitation sets the edge's resolved paper. The resolution is written
// at most once: an edge that already has a resolved paper is left untouched.
func (d *DB) ResolveCitation(citationID, resolvedPaperID string) error {
	res, err := d.db.Exec(`
		UPDATE citations SET resolved_paper_id = ?
		WHERE id = ? AND resolved_paper_id IS NULL`,
		resolvedPaperID, citationID,
	)
	if err != nil {
		return fmt.Errorf("resolving citation %s: %w", citationID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either the edge is unknown or it was already resolved; both are
		// terminal for this edge.
		return nil
	}
	return nil
}

// CountResolvedCitations returns resolved/total edge counts for a collection.
func (d *DB) CountResolvedCitations(collectionID string) (resolved, total int, err error) {
	err = d.db.QueryRow(`
		SELECT COUNT(c.resolved_paper_id), COUNT(*)
		FROM citations c
		JOIN papers p ON p.id = c.src_paper_id
		WHERE p.collection_id = ?`,
		collectionID,
	).Scan(&resolved, &total)
	return resolved, total, err
}

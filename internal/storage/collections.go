package storage

import (
	"database/sql"
	"fmt"

	"github.com/citeweave/citeweave/internal/paper"
)

// CreateCollection inserts a new collection.
func (d *DB) CreateCollection(c *paper.Collection) error {
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	_, err := d.db.Exec(
		`INSERT INTO collections (id, title, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Title, c.CreatedAt,
	)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("collection %s: %w", c.ID, ErrConflict)
		}
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

// GetCollection retrieves a collection by ID.
// Returns ErrNotFound if it does not exist.
func (d *DB) GetCollection(id string) (*paper.Collection, error) {
	var c paper.Collection
	err := d.db.QueryRow(
		`SELECT id, title, created_at FROM collections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting collection: %w", err)
	}
	return &c, nil
}

// ListCollections returns all collections ordered by creation time.
func (d *DB) ListCollections() ([]paper.Collection, error) {
	rows, err := d.db.Query(`SELECT id, title, created_at FROM collections ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []paper.Collection
	for rows.Next() {
		var c paper.Collection
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and everything owned by it: papers,
// author links, citations, chunks, and the chunk FTS rows.
func (d *DB) DeleteCollection(id string) error {
	if _, err := d.GetCollection(id); err != nil {
		return err
	}

	// FTS tables are not covered by foreign-key cascades.
	if _, err := d.db.Exec(`DELETE FROM chunk_fts WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("clearing collection FTS rows: %w", err)
	}

	if _, err := d.db.Exec(`DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

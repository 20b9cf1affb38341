// Package storage persists collections, papers, authors, citations, and
// chunks in SQLite. Uniqueness invariants are enforced here with unique
// indexes as the final backstop; the resolver is the fast path on top.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Errors surfaced by storage operations.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness invariant would be violated.
	ErrConflict = errors.New("uniqueness conflict")
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
// Use ":memory:" for tests.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			doi TEXT,
			norm_doi TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			norm_title TEXT NOT NULL,
			abstract TEXT,
			year INTEGER,
			venue TEXT,
			url TEXT,
			pdf_path TEXT,
			source TEXT NOT NULL,
			added_via TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		-- One paper per non-empty DOI within a collection.
		CREATE UNIQUE INDEX IF NOT EXISTS uq_papers_collection_doi
			ON papers(collection_id, norm_doi) WHERE norm_doi != '';

		-- One paper per (title, year) within a collection, except when the
		-- DOIs differ: duplicate titles occur legitimately across works.
		CREATE UNIQUE INDEX IF NOT EXISTS uq_papers_collection_title_year
			ON papers(collection_id, norm_title, COALESCE(year, -1), norm_doi);

		CREATE INDEX IF NOT EXISTS idx_papers_collection ON papers(collection_id);

		CREATE TABLE IF NOT EXISTS authors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			norm_name TEXT NOT NULL,
			affiliation TEXT,
			norm_affiliation TEXT NOT NULL DEFAULT '',
			UNIQUE (norm_name, norm_affiliation)
		);

		CREATE TABLE IF NOT EXISTS paper_authors (
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
			author_order INTEGER NOT NULL,
			PRIMARY KEY (paper_id, author_id)
		);

		CREATE TABLE IF NOT EXISTS citations (
			id TEXT PRIMARY KEY,
			src_paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			dst_doi TEXT NOT NULL DEFAULT '',
			dst_title TEXT,
			dst_year INTEGER,
			resolved_paper_id TEXT REFERENCES papers(id) ON DELETE SET NULL
		);

		-- At most one edge per (source, destination DOI) pair. Edges without
		-- a DOI are distinguished by their denormalized title/year.
		CREATE UNIQUE INDEX IF NOT EXISTS uq_citations_src_dst
			ON citations(src_paper_id, dst_doi) WHERE dst_doi != '';

		CREATE INDEX IF NOT EXISTS idx_citations_src ON citations(src_paper_id);
		CREATE INDEX IF NOT EXISTS idx_citations_resolved ON citations(resolved_paper_id);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			section TEXT NOT NULL,
			ord INTEGER NOT NULL,
			text TEXT NOT NULL,
			section_hash TEXT NOT NULL,
			UNIQUE (paper_id, section, ord)
		);

		-- Full-text search over chunk text, scoped by collection_id at query
		-- time. Kept in lockstep with the chunks table by UpsertChunk and
		-- the delete cascades in DeletePaperChunks/DeleteCollection.
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
			text,
			chunk_id UNINDEXED,
			paper_id UNINDEXED,
			collection_id UNINDEXED,
			section UNINDEXED
		);

		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			collection_id TEXT,
			job_type TEXT NOT NULL,
			state TEXT NOT NULL,
			detail TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// IsConflict reports whether err stems from a violated unique constraint.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// now returns the canonical timestamp representation used in all tables.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableInt converts an int to sql.NullInt64, treating zero as NULL.
func nullableInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

package storage

import (
	"database/sql"
	"fmt"

	"github.com/citeweave/citeweave/internal/paper"
)

// UpsertChunk adds or replaces a chunk document and its full-text row.
// Replacement is keyed by chunk ID; the FTS row is rewritten so the two
// tables stay in lockstep.
func (d *DB) UpsertChunk(collectionID string, c *paper.Chunk) error {
	_, err := d.db.Exec(`
		INSERT INTO chunks (id, paper_id, section, ord, text, section_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			section = excluded.section,
			ord = excluded.ord,
			text = excluded.text,
			section_hash = excluded.section_hash`,
		c.ID, c.PaperID, c.Section, c.Ord, c.Text, c.SectionHash,
	)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("chunk %s: %w", c.ID, ErrConflict)
		}
		return fmt.Errorf("upserting chunk: %w", err)
	}

	if _, err := d.db.Exec(`DELETE FROM chunk_fts WHERE chunk_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clearing chunk FTS row: %w", err)
	}
	_, err = d.db.Exec(`
		INSERT INTO chunk_fts (text, chunk_id, paper_id, collection_id, section)
		VALUES (?, ?, ?, ?, ?)`,
		c.Text, c.ID, c.PaperID, collectionID, c.Section,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk FTS row: %w", err)
	}
	return nil
}

// RemoveChunk deletes a chunk document and its full-text row.
func (d *DB) RemoveChunk(chunkID string) error {
	if _, err := d.db.Exec(`DELETE FROM chunk_fts WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("removing chunk FTS row: %w", err)
	}
	if _, err := d.db.Exec(`DELETE FROM chunks WHERE id = ?`, chunkID); err != nil {
		return fmt.Errorf("removing chunk: %w", err)
	}
	return nil
}

// GetChunk retrieves a chunk by ID. Returns ErrNotFound if absent.
func (d *DB) GetChunk(id string) (*paper.Chunk, error) {
	var c paper.Chunk
	err := d.db.QueryRow(`
		SELECT id, paper_id, section, ord, text, section_hash
		FROM chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.PaperID, &c.Section, &c.Ord, &c.Text, &c.SectionHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting chunk: %w", err)
	}
	return &c, nil
}

// ListChunks returns a paper's chunks ordered by section then ordinal.
func (d *DB) ListChunks(paperID string) ([]paper.Chunk, error) {
	rows, err := d.db.Query(`
		SELECT id, paper_id, section, ord, text, section_hash
		FROM chunks WHERE paper_id = ? ORDER BY section, ord`,
		paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []paper.Chunk
	for rows.Next() {
		var c paper.Chunk
		if err := rows.Scan(&c.ID, &c.PaperID, &c.Section, &c.Ord, &c.Text, &c.SectionHash); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SectionHashes returns the stored content hash per section for a paper.
// Used by the chunker to skip sections whose content did not change.
func (d *DB) SectionHashes(paperID string) (map[string]string, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT section, section_hash FROM chunks WHERE paper_id = ?`,
		paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing section hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var section, hash string
		if err := rows.Scan(&section, &hash); err != nil {
			return nil, err
		}
		hashes[section] = hash
	}
	return hashes, rows.Err()
}

// DeleteSectionChunks removes all chunks of one section of a paper, returning
// the IDs removed so callers can drop the matching embeddings.
func (d *DB) DeleteSectionChunks(paperID, section string) ([]string, error) {
	rows, err := d.db.Query(`SELECT id FROM chunks WHERE paper_id = ? AND section = ?`, paperID, section)
	if err != nil {
		return nil, fmt.Errorf("listing section chunks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := d.RemoveChunk(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// FTSHit is one ranked full-text match.
type FTSHit struct {
	ChunkID string
	Score   float64
}

// SearchChunkFTS runs a ranked full-text query over a collection's chunks.
// Results are ordered best-first by bm25 rank with ties broken by chunk ID
// ascending, so identical inputs always produce identical output order.
func (d *DB) SearchChunkFTS(collectionID, ftsQuery string, limit int) ([]FTSHit, error) {
	rows, err := d.db.Query(`
		SELECT chunk_id, bm25(chunk_fts) AS rank
		FROM chunk_fts
		WHERE chunk_fts MATCH ? AND collection_id = ?
		ORDER BY rank, chunk_id
		LIMIT ?`,
		ftsQuery, collectionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &rank); err != nil {
			return nil, err
		}
		// bm25() is smaller-is-better; negate so callers see higher-is-better.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ChunkCollectionID returns the owning collection of a chunk via its paper.
func (d *DB) ChunkCollectionID(chunkID string) (string, error) {
	var collectionID string
	err := d.db.QueryRow(`
		SELECT p.collection_id FROM chunks c JOIN papers p ON p.id = c.paper_id
		WHERE c.id = ?`, chunkID,
	).Scan(&collectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
		}
		return "", err
	}
	return collectionID, nil
}

// Package lexical provides per-collection term-frequency search over chunk
// text, backed by the SQLite FTS5 table in the storage layer.
package lexical

import (
	"strings"

	"github.com/citeweave/citeweave/internal/paper"
	"github.com/citeweave/citeweave/internal/storage"
)

// Hit is one ranked lexical result. Score is higher-is-better.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Index is a per-collection inverted index over chunk text. The collection
// scope is a query-time filter on one shared FTS table, so the first write
// for a new collection implicitly creates its index.
type Index struct {
	db *storage.DB
}

// NewIndex creates a lexical index over the given store.
func NewIndex(db *storage.DB) *Index {
	return &Index{db: db}
}

// Upsert adds or replaces the document for a chunk.
func (ix *Index) Upsert(collectionID string, c *paper.Chunk) error {
	return ix.db.UpsertChunk(collectionID, c)
}

// Remove deletes the document for a chunk, used on paper deletion cascade.
func (ix *Index) Remove(chunkID string) error {
	return ix.db.RemoveChunk(chunkID)
}

// Search runs a ranked bm25 query against a collection. Results are ordered
// best-first with ties broken by chunk ID ascending; an empty or
// unmatchable query yields an empty result, never an error.
func (ix *Index) Search(collectionID, query string, topK int) ([]Hit, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" || topK <= 0 {
		return nil, nil
	}

	raw, err := ix.db.SearchChunkFTS(collectionID, ftsQuery, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(raw))
	for i, h := range raw {
		hits[i] = Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return hits, nil
}

// prepareFTSQuery escapes special characters for FTS5 queries. Simple word
// queries pass through; anything with FTS5 operators is phrase-quoted so
// user input can't break the query syntax.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	if strings.ContainsAny(query, "\"*+-:(){}[]^~.") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}

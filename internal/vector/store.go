// Package vector provides nearest-neighbor search over chunk embeddings.
// Each collection's embeddings live in a gob-encoded index file; search is
// exact cosine distance, which is plenty at per-collection scale.
package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Errors returned by vector store operations.
var (
	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnsupportedVersion indicates an index written by an incompatible format.
	ErrUnsupportedVersion = errors.New("unsupported vector index version")
)

// CurrentIndexVersion is the index format version. Increment on breaking
// changes to the on-disk layout.
const CurrentIndexVersion = 1

// Hit is one nearest-neighbor result. Distance is cosine distance in [0, 2];
// smaller means more similar.
type Hit struct {
	ChunkID  string  `json:"chunk_id"`
	Distance float64 `json:"distance"`
}

// collectionIndex is the persisted per-collection embedding map.
type collectionIndex struct {
	Version    int
	ModelName  string
	Dimensions int
	UpdatedAt  time.Time
	Embeddings map[string][]float32 // chunk ID -> vector
}

// Store holds chunk embeddings for any number of collections. Indexes are
// loaded lazily and cached; Flush persists modified ones.
type Store struct {
	dir        string
	modelName  string
	dimensions int

	mu      sync.Mutex
	indexes map[string]*collectionIndex
	dirty   map[string]bool
}

// NewStore creates a vector store rooted at dir with a fixed dimension.
// Vectors of any other length are rejected, since mixing models silently
// corrupts similarity ranking.
func NewStore(dir, modelName string, dimensions int) *Store {
	return &Store{
		dir:        dir,
		modelName:  modelName,
		dimensions: dimensions,
		indexes:    make(map[string]*collectionIndex),
		dirty:      make(map[string]bool),
	}
}

// Dimensions returns the configured vector dimension.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// indexPath returns the index file path for a collection.
func (s *Store) indexPath(collectionID string) string {
	return filepath.Join(s.dir, collectionID+".gob")
}

// load returns the cached index for a collection, reading it from disk or
// creating an empty one on first use. Callers hold s.mu.
func (s *Store) load(collectionID string) (*collectionIndex, error) {
	if idx, ok := s.indexes[collectionID]; ok {
		return idx, nil
	}

	idx := &collectionIndex{
		Version:    CurrentIndexVersion,
		ModelName:  s.modelName,
		Dimensions: s.dimensions,
		Embeddings: make(map[string][]float32),
	}

	f, err := os.Open(s.indexPath(collectionID))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		// First use for this collection.
		s.indexes[collectionID] = idx
		return idx, nil
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(idx); err != nil {
		return nil, fmt.Errorf("decoding vector index: %w", err)
	}
	if idx.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, idx.Version, CurrentIndexVersion)
	}
	if idx.Dimensions != s.dimensions {
		return nil, fmt.Errorf("%w: index has %d, store configured for %d",
			ErrDimensionMismatch, idx.Dimensions, s.dimensions)
	}

	s.indexes[collectionID] = idx
	return idx, nil
}

// Upsert adds or replaces the embedding for a chunk.
func (s *Store) Upsert(collectionID, chunkID string, vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimensions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(collectionID)
	if err != nil {
		return err
	}
	idx.Embeddings[chunkID] = vec
	s.dirty[collectionID] = true
	return nil
}

// Delete removes the embedding for a chunk. Deleting an absent chunk is a
// no-op.
func (s *Store) Delete(collectionID, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(collectionID)
	if err != nil {
		return err
	}
	if _, ok := idx.Embeddings[chunkID]; ok {
		delete(idx.Embeddings, chunkID)
		s.dirty[collectionID] = true
	}
	return nil
}

// DropCollection removes a collection's index entirely (collection cascade).
func (s *Store) DropCollection(collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.indexes, collectionID)
	delete(s.dirty, collectionID)
	if err := os.Remove(s.indexPath(collectionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing vector index: %w", err)
	}
	return nil
}

// Search returns the topK chunks nearest to the query vector by cosine
// distance, ascending. Ties break by chunk ID ascending so identical inputs
// always produce identical output order. An empty collection yields an empty
// result, never an error.
func (s *Store) Search(collectionID string, query []float32, topK int) ([]Hit, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	idx, err := s.load(collectionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	hits := make([]Hit, 0, len(idx.Embeddings))
	for chunkID, vec := range idx.Embeddings {
		hits = append(hits, Hit{ChunkID: chunkID, Distance: 1 - cosineSimilarity(query, vec)})
	}
	s.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Flush persists all modified indexes, writing each to a temp file and
// renaming for atomicity.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating vector index directory: %w", err)
	}

	for collectionID := range s.dirty {
		idx := s.indexes[collectionID]
		idx.UpdatedAt = time.Now()

		path := s.indexPath(collectionID)
		tempPath := path + ".tmp"
		f, err := os.Create(tempPath)
		if err != nil {
			return fmt.Errorf("creating temp index file: %w", err)
		}
		if err := gob.NewEncoder(f).Encode(idx); err != nil {
			f.Close()
			os.Remove(tempPath)
			return fmt.Errorf("encoding vector index: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("closing index file: %w", err)
		}
		if err := os.Rename(tempPath, path); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("renaming index file: %w", err)
		}
		delete(s.dirty, collectionID)
	}
	return nil
}

// cosineSimilarity computes the cosine similarity between two equal-length
// vectors. Zero vectors yield 0 rather than NaN.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denominator := math.Sqrt(normA) * math.Sqrt(normB)
	if denominator == 0 {
		return 0
	}
	return dot / denominator
}

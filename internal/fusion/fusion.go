// Package fusion merges lexical and vector retrieval into a single ranking
// using Reciprocal Rank Fusion. RRF works on rank positions only, so the two
// retrievers' incomparable score scales never need reconciling.
package fusion

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/citeweave/citeweave/internal/lexical"
	"github.com/citeweave/citeweave/internal/vector"
)

const (
	// DefaultK is the RRF smoothing constant. At 60, the gap between rank 1
	// and rank 2 doesn't dominate the fused score.
	DefaultK = 60

	// DefaultPoolMultiplier sizes each retriever's candidate pool relative
	// to topK, giving fusion enough overlap material to work with.
	DefaultPoolMultiplier = 4
)

// LexicalSearcher is the lexical retrieval contract consumed by the ranker.
type LexicalSearcher interface {
	Search(collectionID, query string, topK int) ([]lexical.Hit, error)
}

// VectorSearcher is the vector retrieval contract consumed by the ranker.
type VectorSearcher interface {
	Search(collectionID string, query []float32, topK int) ([]vector.Hit, error)
}

// Result is one fused result. LexRank/VecRank are 1-based positions in the
// source lists, 0 when the chunk was absent from that list.
type Result struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	LexRank int     `json:"lex_rank,omitempty"`
	VecRank int     `json:"vec_rank,omitempty"`
}

// Ranker fuses the two retrievers' rankings.
type Ranker struct {
	lex LexicalSearcher
	vec VectorSearcher

	// K is the RRF smoothing constant (DefaultK when zero).
	K int

	// PoolMultiplier scales each retriever's candidate pool relative to
	// topK (DefaultPoolMultiplier when zero).
	PoolMultiplier int
}

// NewRanker creates a fusion ranker over the given retrievers.
func NewRanker(lex LexicalSearcher, vec VectorSearcher) *Ranker {
	return &Ranker{lex: lex, vec: vec}
}

// Fuse runs both retrievers concurrently, fuses their rankings with RRF, and
// returns the topK chunks. Passing a nil query vector skips vector retrieval,
// so the fused order degrades to the lexical order; when both retrievers come
// back empty the result is empty, not an error.
func (r *Ranker) Fuse(ctx context.Context, collectionID, queryText string, queryVec []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	poolSize := r.poolSize(topK)

	var (
		wg      sync.WaitGroup
		lexHits []lexical.Hit
		vecHits []vector.Hit
		lexErr  error
		vecErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		lexHits, lexErr = r.lex.Search(collectionID, queryText, poolSize)
	}()

	if queryVec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecHits, vecErr = r.vec.Search(collectionID, queryVec, poolSize)
		}()
	}

	wg.Wait()

	if lexErr != nil {
		return nil, fmt.Errorf("lexical retrieval: %w", lexErr)
	}
	if vecErr != nil {
		return nil, fmt.Errorf("vector retrieval: %w", vecErr)
	}

	fused := r.fuse(lexHits, vecHits)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// fuse accumulates RRF scores across both rank lists. A chunk appearing in
// both lists gets the sum of its two contributions and appears once.
func (r *Ranker) fuse(lexHits []lexical.Hit, vecHits []vector.Hit) []Result {
	k := r.K
	if k <= 0 {
		k = DefaultK
	}

	merged := make(map[string]*Result)

	for i, h := range lexHits {
		rank := i + 1
		res, ok := merged[h.ChunkID]
		if !ok {
			res = &Result{ChunkID: h.ChunkID}
			merged[h.ChunkID] = res
		}
		res.Score += 1.0 / float64(rank+k)
		res.LexRank = rank
	}

	for i, h := range vecHits {
		rank := i + 1
		res, ok := merged[h.ChunkID]
		if !ok {
			res = &Result{ChunkID: h.ChunkID}
			merged[h.ChunkID] = res
		}
		res.Score += 1.0 / float64(rank+k)
		res.VecRank = rank
	}

	results := make([]Result, 0, len(merged))
	for _, res := range merged {
		results = append(results, *res)
	}

	// Descending score; chunk ID ascending on ties so the order is a pure
	// function of the input lists.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

func (r *Ranker) poolSize(topK int) int {
	m := r.PoolMultiplier
	if m <= 0 {
		m = DefaultPoolMultiplier
	}
	return topK * m
}

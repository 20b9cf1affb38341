// Package chunker splits section text into bounded retrieval chunks.
//
// Every chunk carries the content hash of its source section, so re-ingesting
// a paper only touches sections whose text actually changed.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/citeweave/citeweave/internal/paper"
)

// Default window sizes, in words.
const (
	DefaultChunkWords   = 200
	DefaultOverlapWords = 40
)

// Chunker splits text into fixed-size word windows with overlap. Overlap
// keeps sentences that straddle a window boundary retrievable from both
// sides.
type Chunker struct {
	ChunkWords   int
	OverlapWords int
}

// New creates a chunker with the default window sizes.
func New() *Chunker {
	return &Chunker{ChunkWords: DefaultChunkWords, OverlapWords: DefaultOverlapWords}
}

// SectionHash returns the stable content hash of a section's text.
func SectionHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkSection splits one section of a paper into chunks. Ordinals start at
// zero and are unique within the section. Empty or whitespace-only text
// yields no chunks.
func (c *Chunker) ChunkSection(paperID, section, text string) []paper.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	size := c.ChunkWords
	if size <= 0 {
		size = DefaultChunkWords
	}
	overlap := c.OverlapWords
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	hash := SectionHash(text)
	var chunks []paper.Chunk

	for start, ord := 0, 0; start < len(words); ord++ {
		end := start + size
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, paper.Chunk{
			ID:          uuid.New().String(),
			PaperID:     paperID,
			Section:     section,
			Ord:         ord,
			Text:        strings.Join(words[start:end], " "),
			SectionHash: hash,
		})

		if end == len(words) {
			break
		}
		start = end - overlap
	}

	return chunks
}

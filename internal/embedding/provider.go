// Package embedding provides vector embedding generation for chunk text.
package embedding

import "context"

// Provider generates embeddings from text. The vector dimension is fixed per
// deployment and must match the vector store's configured dimension.
type Provider interface {
	// Embed generates one embedding per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the vector dimensions the provider produces.
	Dimensions() int
}

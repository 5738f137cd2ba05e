// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text strings to dense float32 vectors. Huayu
// uses these vectors to find near-duplicate flashcards in a learner's deck
// before inserting suggested vocabulary, via pgvector similarity search.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different Provider
// instances must not be mixed in one similarity computation unless both use
// the same model.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns
	// a float32 slice of length Dimensions() or an error if the request
	// fails or ctx is cancelled. Text is passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// provider call. The returned slice has the same length as texts, with
	// the i-th element corresponding to texts[i]. On error the entire result
	// is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider, determined by the underlying model.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for ensuring consistent model usage across a deck.
	ModelID() string
}

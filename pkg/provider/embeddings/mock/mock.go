// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/kaiwenlu/huayu/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// Vectors returns the configured embedding per input text; texts without an
// entry receive ZeroVector (or a zero vector of Dims length when ZeroVector
// is nil). Set Err to inject errors.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the embedding to return.
	Vectors map[string][]float32

	// ZeroVector is returned for texts missing from Vectors.
	ZeroVector []float32

	// Dims is returned by Dimensions. Defaults to 4 when zero.
	Dims int

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// EmbedCalls records every text passed to Embed or EmbedBatch, in order.
	EmbedCalls []string
}

// Compile-time interface check.
var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 4
	}
	return p.Dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

// vectorFor must be called with p.mu held.
func (p *Provider) vectorFor(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	if p.ZeroVector != nil {
		return p.ZeroVector
	}
	return make([]float32, p.Dimensions())
}

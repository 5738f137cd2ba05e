package deck

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for tests and single-process local runs.
type MemStore struct {
	mu    sync.RWMutex
	cards map[string][]memCard // user id → cards in insertion order
}

type memCard struct {
	card      Card
	embedding []float32
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{cards: make(map[string][]memCard)}
}

// AddCard implements [Store].
func (s *MemStore) AddCard(_ context.Context, card *Card, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	cp := *card
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	s.cards[card.UserID] = append(s.cards[card.UserID], memCard{card: cp, embedding: vec})
	return nil
}

// ListCards implements [Store].
func (s *MemStore) ListCards(_ context.Context, userID string) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.cards[userID]
	out := make([]Card, 0, len(stored))
	// Newest first.
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i].card)
	}
	return out, nil
}

// DeleteCard implements [Store].
func (s *MemStore) DeleteCard(_ context.Context, userID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.cards[userID]
	for i, mc := range stored {
		if mc.card.ID == cardID {
			s.cards[userID] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Similar implements [Store] using exact cosine distance.
func (s *MemStore) Similar(_ context.Context, userID string, embedding []float32, k int) ([]SimilarCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SimilarCard, 0, k)
	for _, mc := range s.cards[userID] {
		if len(mc.embedding) == 0 {
			continue
		}
		results = append(results, SimilarCard{
			Card:     mc.card,
			Distance: cosineDistance(embedding, mc.embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// cosineDistance is 1 - cosine similarity, matching pgvector's <=> operator.
// Mismatched or zero-magnitude vectors report maximal distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

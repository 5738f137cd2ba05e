// Package deck manages a learner's personal flashcard deck: vocabulary cards
// added manually or from coach-report suggestions, with embedding-backed
// similarity search so near-duplicate cards surface before insertion.
package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwenlu/huayu/pkg/provider/embeddings"
)

// ErrNotFound is returned when a referenced card does not exist.
var ErrNotFound = errors.New("deck: card not found")

// ErrNoEmbedder is returned by [Deck.Similar] when no embeddings provider is
// configured.
var ErrNoEmbedder = errors.New("deck: no embeddings provider configured")

// Card is a single flashcard in a learner's deck.
type Card struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Hanzi     string    `json:"hanzi"`
	Pinyin    string    `json:"pinyin"`
	English   string    `json:"english"`
	CreatedAt time.Time `json:"createdAt"`
}

// SimilarCard is a card paired with its cosine distance from a query.
// Smaller distance means more similar.
type SimilarCard struct {
	Card
	Distance float64 `json:"distance"`
}

// Store persists cards and their embeddings. Implementations must be safe
// for concurrent use.
type Store interface {
	// AddCard inserts a card. embedding may be nil when no embeddings
	// provider is configured; such cards never appear in Similar results.
	AddCard(ctx context.Context, card *Card, embedding []float32) error

	// ListCards returns all of userID's cards, newest first. An unknown
	// user yields an empty, non-nil slice.
	ListCards(ctx context.Context, userID string) ([]Card, error)

	// DeleteCard removes userID's card with the given id. Returns
	// [ErrNotFound] if the user has no such card.
	DeleteCard(ctx context.Context, userID, cardID string) error

	// Similar returns up to k of userID's cards ordered by ascending cosine
	// distance from the query embedding.
	Similar(ctx context.Context, userID string, embedding []float32, k int) ([]SimilarCard, error)
}

// Deck is the flashcard service: a [Store] plus an optional embeddings
// provider used to vectorise cards and queries.
type Deck struct {
	store    Store
	embedder embeddings.Provider
}

// New creates a [Deck]. embedder may be nil, which disables similarity
// search but keeps add/list/delete working.
func New(store Store, embedder embeddings.Provider) (*Deck, error) {
	if store == nil {
		return nil, fmt.Errorf("deck: store is required")
	}
	return &Deck{store: store, embedder: embedder}, nil
}

// Add inserts a card into the user's deck, assigning an id when the caller
// did not. The card's embedding is computed when an embedder is configured;
// embedding failure fails the add rather than silently degrading search.
func (d *Deck) Add(ctx context.Context, card *Card) error {
	if card.UserID == "" {
		return fmt.Errorf("deck: card user id is required")
	}
	if strings.TrimSpace(card.Hanzi) == "" {
		return fmt.Errorf("deck: card hanzi is required")
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}

	var vec []float32
	if d.embedder != nil {
		var err error
		vec, err = d.embedder.Embed(ctx, embeddingText(card))
		if err != nil {
			return fmt.Errorf("deck: embed card: %w", err)
		}
	}

	if err := d.store.AddCard(ctx, card, vec); err != nil {
		return fmt.Errorf("deck: add card: %w", err)
	}
	return nil
}

// List returns all of the user's cards, newest first.
func (d *Deck) List(ctx context.Context, userID string) ([]Card, error) {
	cards, err := d.store.ListCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("deck: list cards: %w", err)
	}
	return cards, nil
}

// Delete removes a card from the user's deck.
func (d *Deck) Delete(ctx context.Context, userID, cardID string) error {
	if err := d.store.DeleteCard(ctx, userID, cardID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("deck: delete card: %w", err)
	}
	return nil
}

// Similar embeds text and returns up to k of the user's nearest cards.
// Returns [ErrNoEmbedder] when similarity search is disabled.
func (d *Deck) Similar(ctx context.Context, userID, text string, k int) ([]SimilarCard, error) {
	if d.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		k = 5
	}

	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("deck: embed query: %w", err)
	}
	results, err := d.store.Similar(ctx, userID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("deck: similar: %w", err)
	}
	return results, nil
}

// embeddingText is the canonical embedding input for a card. Hanzi and
// meaning together disambiguate homophones.
func embeddingText(card *Card) string {
	parts := []string{card.Hanzi}
	if card.Pinyin != "" {
		parts = append(parts, card.Pinyin)
	}
	if card.English != "" {
		parts = append(parts, card.English)
	}
	return strings.Join(parts, " ")
}

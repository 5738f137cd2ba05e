package deck

import (
	"context"
	"errors"
	"math"
	"testing"

	embmock "github.com/kaiwenlu/huayu/pkg/provider/embeddings/mock"
)

func TestDeck_AddListDelete(t *testing.T) {
	ctx := context.Background()
	d, err := New(NewMemStore(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first := &Card{UserID: "user-1", Hanzi: "碗", Pinyin: "wǎn", English: "bowl"}
	if err := d.Add(ctx, first); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first.ID == "" {
		t.Error("Add did not assign an id")
	}
	if first.CreatedAt.IsZero() {
		t.Error("Add did not set CreatedAt")
	}

	second := &Card{UserID: "user-1", Hanzi: "面", Pinyin: "miàn", English: "noodles"}
	if err := d.Add(ctx, second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	cards, err := d.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if cards[0].Hanzi != "面" {
		t.Errorf("newest first: got %q", cards[0].Hanzi)
	}

	// Other users see an empty, non-nil deck.
	other, err := d.List(ctx, "user-2")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if other == nil || len(other) != 0 {
		t.Errorf("other user's deck = %v, want empty non-nil", other)
	}

	if err := d.Delete(ctx, "user-1", first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, "user-1", first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	// A user cannot delete someone else's card.
	if err := d.Delete(ctx, "user-2", second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user delete err = %v, want ErrNotFound", err)
	}
}

func TestDeck_AddValidation(t *testing.T) {
	ctx := context.Background()
	d, _ := New(NewMemStore(), nil)

	if err := d.Add(ctx, &Card{Hanzi: "碗"}); err == nil {
		t.Error("missing user id accepted")
	}
	if err := d.Add(ctx, &Card{UserID: "user-1", Hanzi: "  "}); err == nil {
		t.Error("blank hanzi accepted")
	}
}

func TestDeck_Similar(t *testing.T) {
	ctx := context.Background()
	embedder := &embmock.Provider{
		Vectors: map[string][]float32{
			"碗 wǎn bowl":     {1, 0, 0, 0},
			"面 miàn noodles": {0, 1, 0, 0},
			"bowl":           {0.9, 0.1, 0, 0},
		},
	}
	d, _ := New(NewMemStore(), embedder)

	for _, card := range []*Card{
		{UserID: "user-1", Hanzi: "碗", Pinyin: "wǎn", English: "bowl"},
		{UserID: "user-1", Hanzi: "面", Pinyin: "miàn", English: "noodles"},
	} {
		if err := d.Add(ctx, card); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := d.Similar(ctx, "user-1", "bowl", 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Hanzi != "碗" {
		t.Errorf("nearest = %q, want 碗", results[0].Hanzi)
	}
	if results[0].Distance >= results[1].Distance {
		t.Errorf("distances not ascending: %v then %v", results[0].Distance, results[1].Distance)
	}

	// k bounds the result count.
	one, err := d.Similar(ctx, "user-1", "bowl", 1)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(one) != 1 {
		t.Errorf("results = %d, want 1", len(one))
	}
}

func TestDeck_SimilarWithoutEmbedder(t *testing.T) {
	d, _ := New(NewMemStore(), nil)
	if _, err := d.Similar(context.Background(), "user-1", "bowl", 5); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("err = %v, want ErrNoEmbedder", err)
	}
}

func TestDeck_EmbedFailureFailsAdd(t *testing.T) {
	embedder := &embmock.Provider{Err: errors.New("backend down")}
	store := NewMemStore()
	d, _ := New(store, embedder)

	if err := d.Add(context.Background(), &Card{UserID: "user-1", Hanzi: "碗"}); err == nil {
		t.Fatal("expected error")
	}
	cards, _ := store.ListCards(context.Background(), "user-1")
	if len(cards) != 0 {
		t.Errorf("cards after failed add = %d, want 0", len(cards))
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero magnitude", []float32{0, 0}, []float32{1, 0}, 1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("cosineDistance = %v, want %v", got, tc.want)
			}
		})
	}
}

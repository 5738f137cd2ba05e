package deck

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

// schema returns the SQL DDL for the cards table with the embedding
// dimension substituted. The vector dimension is baked into the column type
// at schema creation time; changing it later requires a manual migration.
func schema(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS cards (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    hanzi      TEXT NOT NULL,
    pinyin     TEXT NOT NULL DEFAULT '',
    english    TEXT NOT NULL DEFAULT '',
    embedding  vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cards_user ON cards (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_cards_embedding
    ON cards USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL cards table with a
// pgvector HNSW index for similarity search.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on the given database handle.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates or ensures the cards table and its indexes exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embeddings model (e.g. 1536
// for OpenAI text-embedding-3-small).
func Migrate(ctx context.Context, db DB, embeddingDimensions int) error {
	if _, err := db.Exec(ctx, schema(embeddingDimensions)); err != nil {
		return fmt.Errorf("deck: migrate: %w", err)
	}
	return nil
}

// AddCard implements [Store].
func (s *PostgresStore) AddCard(ctx context.Context, card *Card, embedding []float32) error {
	const q = `
		INSERT INTO cards (id, user_id, hanzi, pinyin, english, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}
	err := s.db.QueryRow(ctx, q,
		card.ID, card.UserID, card.Hanzi, card.Pinyin, card.English, vec,
	).Scan(&card.CreatedAt)
	if err != nil {
		return fmt.Errorf("deck: insert card: %w", err)
	}
	return nil
}

// ListCards implements [Store].
func (s *PostgresStore) ListCards(ctx context.Context, userID string) ([]Card, error) {
	const q = `
		SELECT id, user_id, hanzi, pinyin, english, created_at
		FROM   cards
		WHERE  user_id = $1
		ORDER  BY created_at DESC, id`

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("deck: list cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Card, error) {
		var c Card
		err := row.Scan(&c.ID, &c.UserID, &c.Hanzi, &c.Pinyin, &c.English, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("deck: scan cards: %w", err)
	}
	if cards == nil {
		cards = []Card{}
	}
	return cards, nil
}

// DeleteCard implements [Store].
func (s *PostgresStore) DeleteCard(ctx context.Context, userID, cardID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cards WHERE user_id = $1 AND id = $2`, userID, cardID)
	if err != nil {
		return fmt.Errorf("deck: delete card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Similar implements [Store]. Cards stored without an embedding are excluded.
func (s *PostgresStore) Similar(ctx context.Context, userID string, embedding []float32, k int) ([]SimilarCard, error) {
	const q = `
		SELECT id, user_id, hanzi, pinyin, english, created_at,
		       embedding <=> $2 AS distance
		FROM   cards
		WHERE  user_id = $1 AND embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.db.Query(ctx, q, userID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("deck: similar: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SimilarCard, error) {
		var sc SimilarCard
		err := row.Scan(&sc.ID, &sc.UserID, &sc.Hanzi, &sc.Pinyin, &sc.English, &sc.CreatedAt, &sc.Distance)
		return sc, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []SimilarCard{}, nil
		}
		return nil, fmt.Errorf("deck: scan similar: %w", err)
	}
	if results == nil {
		results = []SimilarCard{}
	}
	return results, nil
}

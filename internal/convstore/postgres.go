package convstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the conversation tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL DEFAULT '',
    scenario_id     TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    objective       TEXT NOT NULL DEFAULT '',
    persona         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'ACTIVE',
    rolling_summary TEXT NOT NULL DEFAULT '',
    report          JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS turns (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL,
    text            TEXT NOT NULL,
    pinyin          TEXT NOT NULL DEFAULT '',
    translation     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS completed_scenarios (
    user_id      TEXT NOT NULL,
    scenario_id  TEXT NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, scenario_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The coach
// report is serialised as JSONB on the conversation row.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. Call [PostgresStore.Migrate] once before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("convstore: migrate: %w", err)
	}
	return nil
}

// CreateConversation implements [Store].
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	const q = `
		INSERT INTO conversations (id, user_id, scenario_id, title, objective, persona, status, rolling_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	status := conv.Status
	if status == "" {
		status = StatusActive
	}
	_, err := s.db.Exec(ctx, q,
		conv.ID,
		conv.UserID,
		conv.ScenarioID,
		conv.Title,
		conv.Objective,
		conv.Persona,
		status,
		conv.RollingSummary,
	)
	if err != nil {
		return fmt.Errorf("convstore: create conversation: %w", err)
	}
	return nil
}

// GetConversation implements [Store].
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	const q = `
		SELECT id, user_id, scenario_id, title, objective, persona, status, rolling_summary, report, created_at, updated_at
		FROM   conversations
		WHERE  id = $1`

	var (
		conv       Conversation
		reportJSON []byte
	)
	err := s.db.QueryRow(ctx, q, id).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.ScenarioID,
		&conv.Title,
		&conv.Objective,
		&conv.Persona,
		&conv.Status,
		&conv.RollingSummary,
		&reportJSON,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convstore: get conversation: %w", err)
	}

	if len(reportJSON) > 0 {
		var report CoachReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, fmt.Errorf("convstore: unmarshal report: %w", err)
		}
		conv.Report = &report
	}
	return &conv, nil
}

// AppendTurn implements [Store].
func (s *PostgresStore) AppendTurn(ctx context.Context, turn *Turn) error {
	conv, err := s.GetConversation(ctx, turn.ConversationID)
	if err != nil {
		return err
	}
	if conv.Status.Terminal() {
		return ErrConversationClosed
	}

	const q = `
		INSERT INTO turns (id, conversation_id, role, text, pinyin, translation)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.Exec(ctx, q,
		turn.ID,
		turn.ConversationID,
		turn.Role,
		turn.Text,
		turn.Pinyin,
		turn.Translation,
	)
	if err != nil {
		return fmt.Errorf("convstore: append turn: %w", err)
	}
	return nil
}

// ListTurns implements [Store].
func (s *PostgresStore) ListTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	const q = `
		SELECT id, conversation_id, role, text, pinyin, translation, created_at
		FROM   turns
		WHERE  conversation_id = $1
		ORDER  BY created_at`

	rows, err := s.db.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("convstore: list turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Text, &t.Pinyin, &t.Translation, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("convstore: scan turns: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// DeleteTurns implements [Store].
func (s *PostgresStore) DeleteTurns(ctx context.Context, conversationID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM turns WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("convstore: delete turns: %w", err)
	}
	return nil
}

// UpdateRollingSummary implements [Store].
func (s *PostgresStore) UpdateRollingSummary(ctx context.Context, id string, summary string) error {
	const q = `
		UPDATE conversations
		SET    rolling_summary = $2, updated_at = now()
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, q, id, summary)
	if err != nil {
		return fmt.Errorf("convstore: update rolling summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOutcome implements [Store].
func (s *PostgresStore) UpdateOutcome(ctx context.Context, id string, status Status, report *CoachReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("convstore: marshal report: %w", err)
	}

	const q = `
		UPDATE conversations
		SET    status = $2, report = $3, updated_at = now()
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, q, id, status, reportJSON)
	if err != nil {
		return fmt.Errorf("convstore: update outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCompletedScenario implements [Store]. The ON CONFLICT clause makes the
// insert idempotent.
func (s *PostgresStore) AddCompletedScenario(ctx context.Context, userID string, scenarioID string) error {
	const q = `
		INSERT INTO completed_scenarios (user_id, scenario_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, scenario_id) DO NOTHING`

	if _, err := s.db.Exec(ctx, q, userID, scenarioID); err != nil {
		return fmt.Errorf("convstore: add completed scenario: %w", err)
	}
	return nil
}

// CompletedScenarios implements [Store].
func (s *PostgresStore) CompletedScenarios(ctx context.Context, userID string) ([]string, error) {
	const q = `
		SELECT scenario_id
		FROM   completed_scenarios
		WHERE  user_id = $1
		ORDER  BY completed_at`

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("convstore: completed scenarios: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("convstore: scan completed scenarios: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

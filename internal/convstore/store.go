package convstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced conversation does not exist.
var ErrNotFound = errors.New("convstore: conversation not found")

// ErrConversationClosed is returned when a write targets a conversation that
// has already reached a terminal status.
var ErrConversationClosed = errors.New("convstore: conversation is closed")

// Store provides durable conversation, turn, and progress state.
// The store is the sole mutator of this state; callers never reach the
// underlying database directly. Implementations must be safe for concurrent
// use.
type Store interface {
	// CreateConversation inserts a new conversation. The caller supplies the
	// ID; CreatedAt/UpdatedAt are set by the store.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by id. Returns [ErrNotFound]
	// if no such conversation exists.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// AppendTurn appends a turn to the conversation's durable log. Returns
	// [ErrNotFound] if the conversation does not exist and
	// [ErrConversationClosed] if it is terminal.
	AppendTurn(ctx context.Context, turn *Turn) error

	// ListTurns returns all turns for a conversation in chronological order.
	// A conversation with no turns yields an empty, non-nil slice.
	ListTurns(ctx context.Context, conversationID string) ([]Turn, error)

	// DeleteTurns removes the entire turn log for a conversation. Used as a
	// storage-reduction measure once a completed conversation's coach report
	// has been written. Deleting an empty log is not an error.
	DeleteTurns(ctx context.Context, conversationID string) error

	// UpdateRollingSummary replaces the conversation's rolling summary.
	UpdateRollingSummary(ctx context.Context, id string, summary string) error

	// UpdateOutcome sets the conversation's terminal status and coach report.
	// Returns [ErrNotFound] if the conversation does not exist.
	UpdateOutcome(ctx context.Context, id string, status Status, report *CoachReport) error

	// AddCompletedScenario records that userID finished scenarioID.
	// The add is idempotent: recording an already-present scenario is a no-op.
	AddCompletedScenario(ctx context.Context, userID string, scenarioID string) error

	// CompletedScenarios returns the scenario ids the user has completed,
	// in insertion order. An unknown user yields an empty, non-nil slice.
	CompletedScenarios(ctx context.Context, userID string) ([]string, error)
}

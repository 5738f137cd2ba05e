package convstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for tests and single-process local runs.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	turns         map[string][]Turn   // conversation id → ordered turns
	completed     map[string][]string // user id → ordered scenario ids
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[string]*Conversation),
		turns:         make(map[string][]Turn),
		completed:     make(map[string][]string),
	}
}

// CreateConversation implements [Store].
func (s *MemStore) CreateConversation(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *conv
	if cp.Status == "" {
		cp.Status = StatusActive
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.conversations[cp.ID] = &cp
	return nil
}

// GetConversation implements [Store].
func (s *MemStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

// AppendTurn implements [Store].
func (s *MemStore) AppendTurn(_ context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[turn.ConversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.Status.Terminal() {
		return ErrConversationClosed
	}

	cp := *turn
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], cp)
	return nil
}

// ListTurns implements [Store].
func (s *MemStore) ListTurns(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := slices.Clone(s.turns[conversationID])
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// DeleteTurns implements [Store].
func (s *MemStore) DeleteTurns(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.turns, conversationID)
	return nil
}

// UpdateRollingSummary implements [Store].
func (s *MemStore) UpdateRollingSummary(_ context.Context, id string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.RollingSummary = summary
	conv.UpdatedAt = time.Now()
	return nil
}

// UpdateOutcome implements [Store].
func (s *MemStore) UpdateOutcome(_ context.Context, id string, status Status, report *CoachReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Status = status
	conv.Report = report
	conv.UpdatedAt = time.Now()
	return nil
}

// AddCompletedScenario implements [Store].
func (s *MemStore) AddCompletedScenario(_ context.Context, userID string, scenarioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.completed[userID], scenarioID) {
		return nil
	}
	s.completed[userID] = append(s.completed[userID], scenarioID)
	return nil
}

// CompletedScenarios implements [Store].
func (s *MemStore) CompletedScenarios(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Clone(s.completed[userID])
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Package convstore provides the conversation data model and its persistence
// layer: a [Store] interface, a PostgreSQL implementation ([PostgresStore]),
// and an in-memory implementation ([MemStore]) for tests and local runs.
package convstore

import "time"

// Status is the lifecycle state of a conversation. It is monotonic: once a
// conversation reaches a terminal status no further turns are accepted.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is COMPLETED or FAILED.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange unit in a conversation. Turns are append-only while
// the conversation is ACTIVE; the per-turn log may be deleted wholesale when
// a conversation completes (see [Store.DeleteTurns]).
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Pinyin         string    `json:"pinyin,omitempty"`
	Translation    string    `json:"translation,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CorrectionCategory classifies a coach correction.
type CorrectionCategory string

const (
	CategoryGrammar    CorrectionCategory = "GRAMMAR"
	CategoryWordChoice CorrectionCategory = "WORD_CHOICE"
	CategorySpelling   CorrectionCategory = "SPELLING"
	CategoryOther      CorrectionCategory = "OTHER"
)

// IsValid reports whether c is a recognised category.
func (c CorrectionCategory) IsValid() bool {
	switch c {
	case CategoryGrammar, CategoryWordChoice, CategorySpelling, CategoryOther:
		return true
	}
	return false
}

// Correction is a single coach-identified mistake and its fix. The pinyin
// fields are always derived locally from the hanzi text, never taken from
// model output.
type Correction struct {
	Original        string             `json:"original"`
	Corrected       string             `json:"corrected"`
	Category        CorrectionCategory `json:"category"`
	Explanation     string             `json:"explanation"`
	OriginalPinyin  string             `json:"originalPinyin"`
	CorrectedPinyin string             `json:"correctedPinyin"`
}

// VocabCard is a suggested flashcard: a vocabulary item worth drilling.
type VocabCard struct {
	Hanzi   string `json:"hanzi"`
	Pinyin  string `json:"pinyin"`
	English string `json:"english"`
}

// CoachReport is the terminal feedback artifact, produced exactly once per
// finished conversation and immutable thereafter.
type CoachReport struct {
	// Score grades the learner's performance from 0 to 100.
	Score int `json:"score"`

	// Feedback is the coach's narrative assessment.
	Feedback string `json:"feedback"`

	// Corrections lists mistakes in the order they were made.
	Corrections []Correction `json:"corrections"`

	// SuggestedCards is vocabulary the learner should add to their deck.
	SuggestedCards []VocabCard `json:"suggestedFlashcards"`
}

// Conversation is one scripted-scenario playthrough.
type Conversation struct {
	ID         string `json:"id"`
	UserID     string `json:"userId,omitempty"` // empty = anonymous session
	ScenarioID string `json:"scenarioId"`
	Title      string `json:"title"`
	Objective  string `json:"objective"`
	Persona    string `json:"persona"`
	Status     Status `json:"status"`

	// RollingSummary condenses turns that were compacted out of the model's
	// context window. Empty until the history first exceeds the window.
	RollingSummary string `json:"rollingSummary,omitempty"`

	// Report holds the coach report once the conversation is terminal.
	Report *CoachReport `json:"coachReport,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

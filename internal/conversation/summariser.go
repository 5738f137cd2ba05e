// Package conversation implements the per-conversation tutoring protocol:
// history reconstruction and compaction, model invocation in batch and
// streaming modes, reply metadata parsing, pinyin annotation, and the
// terminal coach-report transition.
//
// All exported types are safe for concurrent use. Turns for the same
// conversation id are serialised internally.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when compacting
// older conversation turns into a rolling summary.
const summarisationPrompt = `Summarise the following Mandarin practice conversation between a learner and a roleplay character.
Preserve: what the learner has already said or asked, facts the character has revealed, progress
toward the scenario objective, and any prices, names, times, or commitments mentioned.
Write the summary in English. Be concise.`

// Summariser produces a concise rolling summary of older conversation turns.
type Summariser interface {
	// Summarise condenses turns into a short summary string.
	Summarise(ctx context.Context, turns []convstore.Turn) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// Compile-time interface check.
var _ Summariser = (*LLMSummariser)(nil)

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise formats the turns into a transcript and asks the model for a
// condensed summary. Empty input returns an empty summary without an LLM call.
func (s *LLMSummariser) Summarise(ctx context.Context, turns []convstore.Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, t := range turns {
		speaker := "Learner"
		if t.Role == convstore.RoleAssistant {
			speaker = "Character"
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, t.Text)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}

	return resp.Content, nil
}

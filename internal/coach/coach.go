// Package coach grades finished conversations: it reviews the full turn log
// and produces a scored report with corrections and suggested flashcards.
//
// The report comes from a single forced-JSON LLM call. Model output is
// untrusted: scores are clamped, unknown correction categories are coerced,
// and empty entries are dropped before the report reaches storage.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kaiwenlu/huayu/internal/conversation"
	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
)

// reportPrompt asks for the exact JSON shape [convstore.CoachReport] decodes.
const reportPrompt = `You are a Mandarin language coach reviewing a finished practice conversation between a
learner and a roleplay character. Grade the learner's Mandarin only, not the character's.

Respond with a single JSON object:
{
  "score": <integer 0-100, overall performance>,
  "feedback": "<2-4 sentences of encouraging, specific feedback in English>",
  "corrections": [
    {
      "original": "<what the learner wrote>",
      "corrected": "<the corrected Mandarin>",
      "category": "<GRAMMAR|WORD_CHOICE|SPELLING|OTHER>",
      "explanation": "<one-sentence explanation in English>"
    }
  ],
  "suggestedFlashcards": [
    {"hanzi": "<word>", "pinyin": "<reading with tone marks>", "english": "<meaning>"}
  ]
}

Only include genuine mistakes in corrections. Suggest at most five flashcards, favouring
vocabulary the learner struggled with or avoided.`

// reportTemperature keeps grading consistent across runs.
const reportTemperature = 0.2

// LLMCoach implements [conversation.Coach] with an LLM provider.
type LLMCoach struct {
	llm llm.Provider
}

// Compile-time interface check.
var _ conversation.Coach = (*LLMCoach)(nil)

// New creates an [LLMCoach] backed by the given provider.
func New(provider llm.Provider) *LLMCoach {
	return &LLMCoach{llm: provider}
}

// Report implements [conversation.Coach].
func (c *LLMCoach) Report(ctx context.Context, conv *convstore.Conversation, turns []convstore.Turn) (*convstore.CoachReport, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scenario: %s\nObjective: %s\n\n", conv.Title, conv.Objective)
	if conv.RollingSummary != "" {
		fmt.Fprintf(&sb, "Summary of earlier turns: %s\n\n", conv.RollingSummary)
	}
	for _, t := range turns {
		speaker := "Learner"
		if t.Role == convstore.RoleAssistant {
			speaker = "Character"
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, t.Text)
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reportPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
		Temperature: reportTemperature,
		ForceJSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("coach: report: %w", err)
	}

	report, err := decodeReport(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("coach: %w", err)
	}
	return report, nil
}

// rawReport mirrors the prompt's JSON shape with lax numeric handling, so a
// model emitting "score": 87.0 still decodes.
type rawReport struct {
	Score       float64         `json:"score"`
	Feedback    string          `json:"feedback"`
	Corrections []rawCorrection `json:"corrections"`
	Cards       []rawCard       `json:"suggestedFlashcards"`
}

type rawCorrection struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
}

type rawCard struct {
	Hanzi   string `json:"hanzi"`
	Pinyin  string `json:"pinyin"`
	English string `json:"english"`
}

// decodeReport parses and sanitises the model's report payload.
func decodeReport(content string) (*convstore.CoachReport, error) {
	var raw rawReport
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	report := &convstore.CoachReport{
		Score:          clampScore(raw.Score),
		Feedback:       strings.TrimSpace(raw.Feedback),
		Corrections:    make([]convstore.Correction, 0, len(raw.Corrections)),
		SuggestedCards: make([]convstore.VocabCard, 0, len(raw.Cards)),
	}

	for _, rc := range raw.Corrections {
		original := strings.TrimSpace(rc.Original)
		corrected := strings.TrimSpace(rc.Corrected)
		if original == "" && corrected == "" {
			continue
		}
		category := convstore.CorrectionCategory(strings.ToUpper(strings.TrimSpace(rc.Category)))
		if !category.IsValid() {
			category = convstore.CategoryOther
		}
		report.Corrections = append(report.Corrections, convstore.Correction{
			Original:    original,
			Corrected:   corrected,
			Category:    category,
			Explanation: strings.TrimSpace(rc.Explanation),
		})
	}

	for _, card := range raw.Cards {
		hanzi := strings.TrimSpace(card.Hanzi)
		if hanzi == "" {
			continue
		}
		report.SuggestedCards = append(report.SuggestedCards, convstore.VocabCard{
			Hanzi:   hanzi,
			Pinyin:  strings.TrimSpace(card.Pinyin),
			English: strings.TrimSpace(card.English),
		})
	}

	return report, nil
}

// clampScore bounds and rounds the model's score to the 0-100 integer scale.
func clampScore(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	s := int(math.Round(score))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even in forced-JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/internal/observe"
	"github.com/kaiwenlu/huayu/pkg/pinyin"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
)

// ErrEmptyUtterance is returned when a submitted utterance is empty or
// whitespace-only.
var ErrEmptyUtterance = errors.New("conversation: empty utterance")

// defaultHistoryWindow is the number of most recent turns kept verbatim in
// the generation prompt; everything older is folded into the rolling summary.
const defaultHistoryWindow = 6

// generationTemperature keeps roleplay replies varied without drifting off
// the scenario.
const generationTemperature = 0.7

// Coach produces the end-of-conversation feedback report.
type Coach interface {
	// Report reviews the full turn log of a finished conversation and
	// returns graded feedback for the learner.
	Report(ctx context.Context, conv *convstore.Conversation, turns []convstore.Turn) (*convstore.CoachReport, error)
}

// Sink receives raw model output chunks during a streamed turn, in order.
// The chunks include the metadata block verbatim; clients split on
// [MetadataDelimiter] themselves. A non-nil error aborts the turn.
type Sink func(chunk string) error

// TurnResult is the outcome of one submitted utterance.
type TurnResult struct {
	// AssistantTurn is the persisted character reply, with pinyin annotation
	// and translation filled in.
	AssistantTurn convstore.Turn

	// Status is the conversation status after this turn.
	Status convstore.Status

	// Report is the coach report, set only when Status is terminal.
	Report *convstore.CoachReport
}

// Orchestrator runs the tutoring protocol for conversations: it persists the
// learner's utterance, compacts history beyond the window into a rolling
// summary, invokes the model, parses and annotates the reply, and performs
// the terminal coach-report transition.
//
// All exported methods are safe for concurrent use. Turns for the same
// conversation id are serialised; turns for different conversations proceed
// in parallel.
type Orchestrator struct {
	store      convstore.Store
	chat       llm.Provider
	summariser Summariser
	coach      Coach
	annotator  pinyin.Annotator
	metrics    *observe.Metrics
	window     int
	locks      *keyedMutex
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithSummariser replaces the default [LLMSummariser].
func WithSummariser(s Summariser) Option {
	return func(o *Orchestrator) { o.summariser = s }
}

// WithCoach sets the coach used for terminal feedback reports. Without a
// coach, terminal conversations get an empty report.
func WithCoach(c Coach) Option {
	return func(o *Orchestrator) { o.coach = c }
}

// WithAnnotator replaces the default hanzi pinyin annotator.
func WithAnnotator(a pinyin.Annotator) Option {
	return func(o *Orchestrator) { o.annotator = a }
}

// WithMetrics sets the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithHistoryWindow sets how many recent turns are kept verbatim in the
// prompt. Values below 1 are ignored. The default is 6.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.window = n
		}
	}
}

// New creates an Orchestrator. store and chat are required; everything else
// has a default.
func New(store convstore.Store, chat llm.Provider, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("conversation: store is required")
	}
	if chat == nil {
		return nil, fmt.Errorf("conversation: chat provider is required")
	}

	o := &Orchestrator{
		store:      store,
		chat:       chat,
		summariser: NewLLMSummariser(chat),
		annotator:  pinyin.NewHanziAnnotator(),
		window:     defaultHistoryWindow,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// SubmitUtterance runs one batch turn: the learner's text goes in, the
// character's annotated reply comes out once generation finishes.
func (o *Orchestrator) SubmitUtterance(ctx context.Context, conversationID, text string) (*TurnResult, error) {
	return o.submit(ctx, conversationID, text, nil)
}

// StreamUtterance runs one turn in streaming mode. Raw model chunks are
// forwarded to sink as they arrive; the returned result carries the same
// parsed reply the batch path would produce. If sink returns an error the
// turn is abandoned and no assistant turn is persisted.
func (o *Orchestrator) StreamUtterance(ctx context.Context, conversationID, text string, sink Sink) (*TurnResult, error) {
	if sink == nil {
		return nil, fmt.Errorf("conversation: nil sink")
	}
	return o.submit(ctx, conversationID, text, sink)
}

func (o *Orchestrator) submit(ctx context.Context, conversationID, text string, sink Sink) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyUtterance
	}

	unlock := o.locks.lock(conversationID)
	defer unlock()

	start := time.Now()
	log := observe.Logger(ctx).With("conversation_id", conversationID)

	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	if conv.Status.Terminal() {
		return nil, convstore.ErrConversationClosed
	}

	// Snapshot the history before the new utterance lands so the window
	// arithmetic below counts it exactly once.
	history, err := o.store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list turns: %w", err)
	}

	userTurn := convstore.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           convstore.RoleUser,
		Text:           text,
	}
	if err := o.store.AppendTurn(ctx, &userTurn); err != nil {
		return nil, fmt.Errorf("conversation: append user turn: %w", err)
	}
	history = append(history, userTurn)

	// Compact: fold everything beyond the window into the rolling summary.
	summary := conv.RollingSummary
	recent := history
	if len(history) > o.window {
		older := history[:len(history)-o.window]
		recent = history[len(history)-o.window:]

		// A broken summariser fails the turn; falling back to the full
		// history would break the prompt budget. The user turn is already
		// durable, so the submission can be retried.
		sumStart := time.Now()
		newSummary, sumErr := o.summariser.Summarise(ctx, older)
		o.metrics.SummarisationDuration.Record(ctx, time.Since(sumStart).Seconds())
		if sumErr != nil {
			log.Warn("summarisation failed", "err", sumErr)
			o.metrics.RecordProviderError(ctx, "summariser", "llm")
			return nil, fmt.Errorf("conversation: summarise history: %w", sumErr)
		}
		if err := o.store.UpdateRollingSummary(ctx, conversationID, newSummary); err != nil {
			return nil, fmt.Errorf("conversation: update summary: %w", err)
		}
		summary = newSummary
		o.metrics.Summarisations.Add(ctx, 1)
	}

	raw, err := o.generate(ctx, buildSystemPrompt(conv, summary), toMessages(recent), sink)
	if err != nil {
		o.metrics.RecordProviderError(ctx, "chat", "llm")
		return nil, err
	}

	parsed, ok := ParseReply(raw)
	if !ok {
		o.metrics.RecordMalformedReply(ctx, conv.ScenarioID)
	}
	parsed = applyFallback(parsed)

	assistantTurn := convstore.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           convstore.RoleAssistant,
		Text:           parsed.Content,
		Pinyin:         o.annotator.Annotate(parsed.Content),
		Translation:    parsed.Metadata.Translation,
	}
	if err := o.store.AppendTurn(ctx, &assistantTurn); err != nil {
		return nil, fmt.Errorf("conversation: append assistant turn: %w", err)
	}
	history = append(history, assistantTurn)

	result := &TurnResult{
		AssistantTurn: assistantTurn,
		Status:        parsed.Metadata.Status,
	}

	if parsed.Metadata.Status.Terminal() {
		report, err := o.finish(ctx, conv, history, parsed.Metadata.Status)
		if err != nil {
			return nil, err
		}
		result.Report = report
	}

	mode := "batch"
	if sink != nil {
		mode = "stream"
	}
	o.metrics.RecordTurn(ctx, conv.ScenarioID, mode)
	o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())

	return result, nil
}

// generate invokes the model once, in batch or streaming mode, and returns
// the fully assembled raw reply including the metadata block.
func (o *Orchestrator) generate(ctx context.Context, systemPrompt string, msgs []llm.Message, sink Sink) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     msgs,
		Temperature:  generationTemperature,
	}

	start := time.Now()
	defer func() {
		o.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if sink == nil {
		resp, err := o.chat.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("conversation: generate: %w", err)
		}
		if resp == nil {
			return "", nil
		}
		return resp.Content, nil
	}

	chunks, err := o.chat.StreamCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("conversation: generate: %w", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			return "", fmt.Errorf("conversation: generate: stream failed: %s", chunk.Text)
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
			if err := sink(chunk.Text); err != nil {
				return "", fmt.Errorf("conversation: sink: %w", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("conversation: generate: %w", err)
	}
	return sb.String(), nil
}

// finish performs the terminal transition: coach report, correction
// annotation, progress recording, outcome write, and turn-log cleanup.
func (o *Orchestrator) finish(ctx context.Context, conv *convstore.Conversation, history []convstore.Turn, status convstore.Status) (*convstore.CoachReport, error) {
	log := observe.Logger(ctx).With("conversation_id", conv.ID)

	report := o.coachReport(ctx, conv, history)

	// Corrections come back from the coach without readings; annotate both
	// sides so the client can show them.
	for i := range report.Corrections {
		c := &report.Corrections[i]
		if c.OriginalPinyin == "" {
			c.OriginalPinyin = o.annotator.Annotate(c.Original)
		}
		if c.CorrectedPinyin == "" {
			c.CorrectedPinyin = o.annotator.Annotate(c.Corrected)
		}
	}

	completed := status == convstore.StatusCompleted && conv.UserID != ""
	if completed {
		if err := o.store.AddCompletedScenario(ctx, conv.UserID, conv.ScenarioID); err != nil {
			return nil, fmt.Errorf("conversation: record completed scenario: %w", err)
		}
	}
	if err := o.store.UpdateOutcome(ctx, conv.ID, status, report); err != nil {
		return nil, fmt.Errorf("conversation: update outcome: %w", err)
	}

	// A successful completion no longer needs the full log once the report
	// is durable; failed attempts keep theirs for later review. Cleanup
	// failure is not worth failing the finished conversation over.
	if completed {
		if err := o.store.DeleteTurns(ctx, conv.ID); err != nil {
			log.Warn("failed to delete turn log", "err", err)
		}
	}

	o.metrics.RecordCompletion(ctx, conv.ScenarioID, string(status))
	o.metrics.ActiveConversations.Add(ctx, -1)

	return report, nil
}

// coachReport asks the coach for feedback, degrading to an empty report when
// no coach is configured or the coach fails. A finished conversation without
// feedback beats a conversation stuck in ACTIVE.
func (o *Orchestrator) coachReport(ctx context.Context, conv *convstore.Conversation, history []convstore.Turn) *convstore.CoachReport {
	empty := &convstore.CoachReport{
		Corrections:    []convstore.Correction{},
		SuggestedCards: []convstore.VocabCard{},
	}
	if o.coach == nil {
		return empty
	}

	start := time.Now()
	report, err := o.coach.Report(ctx, conv, history)
	o.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("coach report failed", "conversation_id", conv.ID, "err", err)
		o.metrics.RecordProviderError(ctx, "coach", "llm")
		return empty
	}
	if report.Corrections == nil {
		report.Corrections = []convstore.Correction{}
	}
	if report.SuggestedCards == nil {
		report.SuggestedCards = []convstore.VocabCard{}
	}
	return report
}

package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
	llmmock "github.com/kaiwenlu/huayu/pkg/provider/llm/mock"
)

// stubAnnotator produces a deterministic reading without real pinyin data.
type stubAnnotator struct{}

func (stubAnnotator) Annotate(text string) string {
	if text == "" {
		return ""
	}
	return "py:" + text
}

// stubSummariser records its input and returns a fixed summary.
type stubSummariser struct {
	calls   [][]convstore.Turn
	summary string
	err     error
}

func (s *stubSummariser) Summarise(_ context.Context, turns []convstore.Turn) (string, error) {
	s.calls = append(s.calls, turns)
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

// stubCoach records its input and returns a fixed report.
type stubCoach struct {
	calls  int
	report *convstore.CoachReport
	err    error
}

func (c *stubCoach) Report(_ context.Context, _ *convstore.Conversation, _ []convstore.Turn) (*convstore.CoachReport, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.report, nil
}

func activeReply(content, translation string) string {
	return content + MetadataDelimiter + `{"translation": "` + translation + `", "status": "ACTIVE"}`
}

func newTestConversation(t *testing.T, store convstore.Store) *convstore.Conversation {
	t.Helper()
	conv := &convstore.Conversation{
		ID:         "conv-1",
		UserID:     "user-1",
		ScenarioID: "ordering-food",
		Title:      "Ordering Food",
		Objective:  "Order a bowl of noodles and pay.",
		Persona:    "A friendly noodle shop owner in Chengdu.",
		Status:     convstore.StatusActive,
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func TestSubmitUtterance_BasicTurn(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: activeReply("你好！想吃什么？", "Hello! What would you like to eat?")},
	}
	o, err := New(store, p, WithAnnotator(stubAnnotator{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := o.SubmitUtterance(context.Background(), "conv-1", "ni hao")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	if result.Status != convstore.StatusActive {
		t.Errorf("status = %q, want ACTIVE", result.Status)
	}
	if result.Report != nil {
		t.Error("report set on a non-terminal turn")
	}
	if result.AssistantTurn.Text != "你好！想吃什么？" {
		t.Errorf("assistant text = %q", result.AssistantTurn.Text)
	}
	if result.AssistantTurn.Translation != "Hello! What would you like to eat?" {
		t.Errorf("translation = %q", result.AssistantTurn.Translation)
	}
	if result.AssistantTurn.Pinyin != "py:你好！想吃什么？" {
		t.Errorf("pinyin = %q", result.AssistantTurn.Pinyin)
	}

	turns, err := store.ListTurns(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != convstore.RoleUser || turns[0].Text != "ni hao" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != convstore.RoleAssistant {
		t.Errorf("assistant turn role = %q", turns[1].Role)
	}

	// The generation request carries persona, objective, and protocol.
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "noodle shop owner") {
		t.Error("system prompt missing persona")
	}
	if !strings.Contains(req.SystemPrompt, MetadataDelimiter) {
		t.Error("system prompt missing reply protocol")
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "ni hao" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestSubmitUtterance_EmptyUtterance(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	o, _ := New(store, &llmmock.Provider{}, WithAnnotator(stubAnnotator{}))

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := o.SubmitUtterance(context.Background(), "conv-1", text); !errors.Is(err, ErrEmptyUtterance) {
			t.Errorf("text %q: err = %v, want ErrEmptyUtterance", text, err)
		}
	}
}

func TestSubmitUtterance_UnknownConversation(t *testing.T) {
	o, _ := New(convstore.NewMemStore(), &llmmock.Provider{}, WithAnnotator(stubAnnotator{}))

	_, err := o.SubmitUtterance(context.Background(), "nope", "你好")
	if !errors.Is(err, convstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitUtterance_ClosedConversation(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)
	if err := store.UpdateOutcome(context.Background(), "conv-1", convstore.StatusCompleted, nil); err != nil {
		t.Fatalf("UpdateOutcome: %v", err)
	}

	o, _ := New(store, &llmmock.Provider{}, WithAnnotator(stubAnnotator{}))

	_, err := o.SubmitUtterance(context.Background(), "conv-1", "你好")
	if !errors.Is(err, convstore.ErrConversationClosed) {
		t.Errorf("err = %v, want ErrConversationClosed", err)
	}
}

func TestSubmitUtterance_ProviderError(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	o, _ := New(store, &llmmock.Provider{CompleteErr: errors.New("backend down")}, WithAnnotator(stubAnnotator{}))

	if _, err := o.SubmitUtterance(context.Background(), "conv-1", "你好"); err == nil {
		t.Fatal("expected error")
	}

	// The learner's utterance survives the failed generation.
	turns, _ := store.ListTurns(context.Background(), "conv-1")
	if len(turns) != 1 || turns[0].Role != convstore.RoleUser {
		t.Errorf("turns after failure = %+v", turns)
	}
}

func TestSubmitUtterance_CompactsBeyondWindow(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	ctx := context.Background()
	seeded := []string{"a1", "b1", "a2", "b2", "a3", "b3"}
	for i, text := range seeded {
		role := convstore.RoleUser
		if i%2 == 1 {
			role = convstore.RoleAssistant
		}
		err := store.AppendTurn(ctx, &convstore.Turn{
			ID: text, ConversationID: "conv-1", Role: role, Text: text,
		})
		if err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: activeReply("好的。", "OK.")},
	}
	sum := &stubSummariser{summary: "The learner has ordered noodles."}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}), WithSummariser(sum))

	if _, err := o.SubmitUtterance(ctx, "conv-1", "a4"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	// 7 turns total: the oldest is summarised, the newest 6 stay verbatim.
	if len(sum.calls) != 1 {
		t.Fatalf("summariser calls = %d, want 1", len(sum.calls))
	}
	if len(sum.calls[0]) != 1 || sum.calls[0][0].Text != "a1" {
		t.Errorf("summarised turns = %+v, want just a1", sum.calls[0])
	}

	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.RollingSummary != "The learner has ordered noodles." {
		t.Errorf("rolling summary = %q", conv.RollingSummary)
	}

	req := p.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "The learner has ordered noodles.") {
		t.Error("system prompt missing rolling summary")
	}
	if len(req.Messages) != 6 {
		t.Fatalf("prompt messages = %d, want 6", len(req.Messages))
	}
	if req.Messages[0].Content != "b1" || req.Messages[5].Content != "a4" {
		t.Errorf("prompt window = %q .. %q, want b1 .. a4", req.Messages[0].Content, req.Messages[5].Content)
	}
}

func TestSubmitUtterance_SummariserFailureFailsTurn(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	ctx := context.Background()
	if err := store.UpdateRollingSummary(ctx, "conv-1", "old summary"); err != nil {
		t.Fatalf("UpdateRollingSummary: %v", err)
	}
	for i := range 6 {
		_ = store.AppendTurn(ctx, &convstore.Turn{
			ID: string(rune('a' + i)), ConversationID: "conv-1",
			Role: convstore.RoleUser, Text: "x",
		})
	}

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: activeReply("好的。", "OK.")},
	}
	sum := &stubSummariser{err: errors.New("summariser down")}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}), WithSummariser(sum))

	if _, err := o.SubmitUtterance(ctx, "conv-1", "你好"); err == nil {
		t.Fatal("SubmitUtterance succeeded, want summariser failure to fail the turn")
	}

	// No generation attempt, no summary change; only the user turn was
	// appended and stays durable for a retry.
	if len(p.CompleteCalls) != 0 {
		t.Errorf("Complete called %d times, want 0", len(p.CompleteCalls))
	}
	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.RollingSummary != "old summary" {
		t.Errorf("rolling summary = %q, want old summary preserved", conv.RollingSummary)
	}
	turns, _ := store.ListTurns(ctx, "conv-1")
	if len(turns) != 7 {
		t.Errorf("turn count = %d, want 7 (6 seeded + durable user turn)", len(turns))
	}
}

func TestSubmitUtterance_MissingMetadataDefaults(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "你好！"},
	}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}))

	result, err := o.SubmitUtterance(context.Background(), "conv-1", "ni hao")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if result.Status != convstore.StatusActive {
		t.Errorf("status = %q, want ACTIVE", result.Status)
	}
	if result.AssistantTurn.Translation != "" {
		t.Errorf("translation = %q, want empty", result.AssistantTurn.Translation)
	}
	if result.AssistantTurn.Text != "你好！" {
		t.Errorf("text = %q", result.AssistantTurn.Text)
	}
}

func TestSubmitUtterance_EmptyContentFallback(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: activeReply("...", "dots")},
	}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}))

	result, err := o.SubmitUtterance(context.Background(), "conv-1", "ni hao")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if result.AssistantTurn.Text != fallbackText {
		t.Errorf("text = %q, want fallback", result.AssistantTurn.Text)
	}
	if result.AssistantTurn.Translation != fallbackTranslation {
		t.Errorf("translation = %q, want fallback", result.AssistantTurn.Translation)
	}
}

func TestSubmitUtterance_CompletionTransition(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)
	ctx := context.Background()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "太好了，再见！" + MetadataDelimiter + `{"translation": "Great, goodbye!", "status": "COMPLETED"}`,
		},
	}
	coach := &stubCoach{report: &convstore.CoachReport{
		Score:    85,
		Feedback: "Solid ordering. Watch your tones on 面.",
		Corrections: []convstore.Correction{
			{Original: "我要面", Corrected: "我要一碗面", Category: convstore.CategoryGrammar, Explanation: "Use a measure word."},
		},
		SuggestedCards: []convstore.VocabCard{
			{Hanzi: "碗", Pinyin: "wǎn", English: "bowl"},
		},
	}}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}), WithCoach(coach))

	result, err := o.SubmitUtterance(ctx, "conv-1", "谢谢，再见")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	if result.Status != convstore.StatusCompleted {
		t.Fatalf("status = %q, want COMPLETED", result.Status)
	}
	if coach.calls != 1 {
		t.Errorf("coach calls = %d, want 1", coach.calls)
	}
	if result.Report == nil {
		t.Fatal("report missing")
	}
	if result.Report.Score != 85 {
		t.Errorf("score = %d, want 85", result.Report.Score)
	}

	// Corrections gain readings on both sides.
	corr := result.Report.Corrections[0]
	if corr.OriginalPinyin != "py:我要面" {
		t.Errorf("original pinyin = %q", corr.OriginalPinyin)
	}
	if corr.CorrectedPinyin != "py:我要一碗面" {
		t.Errorf("corrected pinyin = %q", corr.CorrectedPinyin)
	}

	// Durable state: outcome written, progress recorded, turn log emptied.
	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.Status != convstore.StatusCompleted {
		t.Errorf("stored status = %q", conv.Status)
	}
	if conv.Report == nil || conv.Report.Score != 85 {
		t.Errorf("stored report = %+v", conv.Report)
	}
	done, _ := store.CompletedScenarios(ctx, "user-1")
	if len(done) != 1 || done[0] != "ordering-food" {
		t.Errorf("completed scenarios = %v", done)
	}
	turns, _ := store.ListTurns(ctx, "conv-1")
	if len(turns) != 0 {
		t.Errorf("turns after completion = %d, want 0", len(turns))
	}
}

func TestSubmitUtterance_FailedScenarioSkipsProgress(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)
	ctx := context.Background()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "算了。" + MetadataDelimiter + `{"translation": "Forget it.", "status": "FAILED"}`,
		},
	}
	coach := &stubCoach{report: &convstore.CoachReport{Score: 20, Feedback: "Try again."}}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}), WithCoach(coach))

	result, err := o.SubmitUtterance(ctx, "conv-1", "我不想说了")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if result.Status != convstore.StatusFailed {
		t.Fatalf("status = %q, want FAILED", result.Status)
	}

	done, _ := store.CompletedScenarios(ctx, "user-1")
	if len(done) != 0 {
		t.Errorf("completed scenarios = %v, want none", done)
	}
	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.Status != convstore.StatusFailed {
		t.Errorf("stored status = %q", conv.Status)
	}

	// Failed attempts keep their turn log for review.
	turns, _ := store.ListTurns(ctx, "conv-1")
	if len(turns) != 2 {
		t.Errorf("turns after failure = %d, want 2", len(turns))
	}
}

func TestSubmitUtterance_CoachFailureDegradesToEmptyReport(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)
	ctx := context.Background()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "再见！" + MetadataDelimiter + `{"translation": "Bye!", "status": "COMPLETED"}`,
		},
	}
	coach := &stubCoach{err: errors.New("coach down")}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}), WithCoach(coach))

	result, err := o.SubmitUtterance(ctx, "conv-1", "再见")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if result.Status != convstore.StatusCompleted {
		t.Fatalf("status = %q, want COMPLETED", result.Status)
	}
	if result.Report == nil {
		t.Fatal("report missing")
	}
	if result.Report.Score != 0 || len(result.Report.Corrections) != 0 {
		t.Errorf("report = %+v, want empty", result.Report)
	}
	if result.Report.Corrections == nil || result.Report.SuggestedCards == nil {
		t.Error("empty report slices should be non-nil")
	}

	// The transition still lands.
	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.Status != convstore.StatusCompleted {
		t.Errorf("stored status = %q", conv.Status)
	}
}

func TestStreamUtterance_ForwardsRawChunks(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	meta := MetadataDelimiter + `{"translation": "Hello!", "status": "ACTIVE"}`
	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "你"},
			{Text: "好！"},
			{Text: meta},
			{FinishReason: "stop"},
		},
	}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}))

	var streamed strings.Builder
	result, err := o.StreamUtterance(context.Background(), "conv-1", "ni hao", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamUtterance: %v", err)
	}

	// The sink sees the raw wire format, metadata included.
	if got := streamed.String(); got != "你好！"+meta {
		t.Errorf("streamed = %q", got)
	}

	// The result carries the parsed view.
	if result.AssistantTurn.Text != "你好！" {
		t.Errorf("text = %q", result.AssistantTurn.Text)
	}
	if result.AssistantTurn.Translation != "Hello!" {
		t.Errorf("translation = %q", result.AssistantTurn.Translation)
	}
	if result.Status != convstore.StatusActive {
		t.Errorf("status = %q", result.Status)
	}
}

func TestStreamUtterance_SinkErrorAbandonsTurn(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "你好"}},
	}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}))

	wantErr := errors.New("client went away")
	_, err := o.StreamUtterance(context.Background(), "conv-1", "ni hao", func(string) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped sink error", err)
	}

	// The user turn persists; the assistant turn was never written.
	turns, _ := store.ListTurns(context.Background(), "conv-1")
	if len(turns) != 1 || turns[0].Role != convstore.RoleUser {
		t.Errorf("turns = %+v", turns)
	}
}

func TestStreamUtterance_ErrorChunkFailsTurn(t *testing.T) {
	store := convstore.NewMemStore()
	newTestConversation(t, store)

	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "你"},
			{Text: "rate limited", FinishReason: "error"},
		},
	}
	o, _ := New(store, p, WithAnnotator(stubAnnotator{}))

	forwarded := 0
	_, err := o.StreamUtterance(context.Background(), "conv-1", "ni hao", func(string) error {
		forwarded++
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if forwarded != 1 {
		t.Errorf("chunks forwarded before failure = %d, want 1", forwarded)
	}
}

func TestStreamUtterance_NilSink(t *testing.T) {
	o, _ := New(convstore.NewMemStore(), &llmmock.Provider{}, WithAnnotator(stubAnnotator{}))
	if _, err := o.StreamUtterance(context.Background(), "conv-1", "ni hao", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, &llmmock.Provider{}); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := New(convstore.NewMemStore(), nil); err == nil {
		t.Error("nil provider accepted")
	}
}

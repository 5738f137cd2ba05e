package conversation

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kaiwenlu/huayu/internal/convstore"
)

// Wire delimiters. Clients consuming the raw stream split on these, so the
// byte sequences must never change.
const (
	// MetadataDelimiter separates the user-visible reply from the trailing
	// JSON metadata block in every model response.
	MetadataDelimiter = "---METADATA---"

	// ReportDelimiter precedes the JSON-encoded coach report appended to a
	// transport stream after the metadata block, once a conversation has
	// reached a terminal status.
	ReportDelimiter = "---REPORT---"
)

// Fallback reply substituted when the model returns empty or placeholder
// content. Surfacing emptiness to a learner mid-roleplay would break the
// scene, so the character apologises instead.
const (
	fallbackText        = "不好意思，我没听清楚。请再说一遍，好吗？"
	fallbackTranslation = "Sorry, I didn't catch that. Could you say it again?"
)

// Metadata is the structured tail of a model reply.
type Metadata struct {
	// Translation is the English translation of the reply content.
	Translation string `json:"translation"`

	// Status is the model's judgement of the scenario objective:
	// ACTIVE to keep playing, COMPLETED or FAILED to end the conversation.
	Status convstore.Status `json:"status"`
}

// ParsedReply is the result of splitting a raw model reply.
type ParsedReply struct {
	// Content is the user-visible assistant message, trimmed.
	Content string

	// Metadata is the decoded metadata block, or its defaults when the
	// block was missing or malformed.
	Metadata Metadata
}

// ParseReply splits a fully-assembled raw reply into display content and
// metadata. It is the single parser for both the batch and streaming paths —
// the caller assembles streamed chunks into one string first.
//
// The raw format is:
//
//	<display content>---METADATA---<JSON object>
//
// Everything before the first delimiter occurrence (trimmed) is the display
// content. The tail is decoded as JSON; a missing or malformed tail is
// logged and degrades to {translation: "", status: ACTIVE} rather than
// failing the turn. An unrecognised status value likewise defaults to ACTIVE.
//
// The second return value reports whether a metadata block was present and
// decoded successfully.
func ParseReply(raw string) (ParsedReply, bool) {
	content, tail, found := strings.Cut(raw, MetadataDelimiter)

	parsed := ParsedReply{
		Content:  strings.TrimSpace(content),
		Metadata: Metadata{Status: convstore.StatusActive},
	}
	if !found {
		slog.Warn("model reply missing metadata block")
		return parsed, false
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(tail)), &meta); err != nil {
		slog.Warn("malformed reply metadata", "err", err)
		return parsed, false
	}

	parsed.Metadata.Translation = meta.Translation
	if meta.Status.IsValid() {
		parsed.Metadata.Status = meta.Status
	}
	return parsed, true
}

// applyFallback replaces empty or placeholder display content with the fixed
// in-character apology. A reply that degenerated to a bare ellipsis counts
// as empty.
func applyFallback(parsed ParsedReply) ParsedReply {
	switch parsed.Content {
	case "", "...", "…", "。。。":
		parsed.Content = fallbackText
		parsed.Metadata.Translation = fallbackTranslation
	}
	return parsed
}

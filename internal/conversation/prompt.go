package conversation

import (
	"strings"

	"github.com/kaiwenlu/huayu/internal/convstore"
	"github.com/kaiwenlu/huayu/pkg/provider/llm"
)

// replyProtocol instructs the model to emit the wire format the orchestrator
// parses: display content, then the metadata delimiter, then a JSON object.
const replyProtocol = `Respond in Mandarin Chinese, staying in character. Keep replies short and
conversational, suited to the learner's level.

After your reply, append the literal text ---METADATA--- followed immediately by a JSON object:
{"translation": "<English translation of your reply>", "status": "<ACTIVE|COMPLETED|FAILED>"}

Set status to COMPLETED once the learner has achieved the scenario objective, FAILED if the
scenario can no longer succeed (for example the learner gave up or the character ended the
interaction), and ACTIVE otherwise. Emit nothing after the JSON object.`

// buildSystemPrompt assembles the generation system prompt from the
// character persona, the scenario objective, the optional rolling summary of
// compacted turns, and the reply protocol instructions.
func buildSystemPrompt(conv *convstore.Conversation, summary string) string {
	var sb strings.Builder

	sb.WriteString("You are roleplaying the following character in a Mandarin practice scenario.\n\n")
	sb.WriteString("Character: ")
	sb.WriteString(conv.Persona)
	sb.WriteString("\n\nScenario objective for the learner: ")
	sb.WriteString(conv.Objective)

	if summary != "" {
		sb.WriteString("\n\nSummary of the conversation so far (older turns): ")
		sb.WriteString(summary)
	}

	sb.WriteString("\n\n")
	sb.WriteString(replyProtocol)
	return sb.String()
}

// toMessages converts stored turns into chat-completion messages.
func toMessages(turns []convstore.Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		role := "user"
		if t.Role == convstore.RoleAssistant {
			role = "assistant"
		}
		msgs[i] = llm.Message{Role: role, Content: t.Text}
	}
	return msgs
}

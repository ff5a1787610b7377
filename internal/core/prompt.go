package core

import (
	"strings"

	"gwi.com/rag-assistant/internal/store"
)

// ContextPreamble introduces retrieved snippets in an augmented prompt.
const ContextPreamble = "Use this full context to first understand then answer the query:"

// Prompt is what the completion gateway receives.
type Prompt struct {
	Text    string
	History []store.Turn
}

// AssemblePrompt frames retrieved snippets around the user's message and picks the prior
// turns sent as conversational context. With no snippets the text is the message verbatim.
// historyLimit > 0 keeps only the most recent turns; otherwise the full history is used.
// A window never opens on a model turn, since the chat history must start with the user.
func AssemblePrompt(message string, snippets []string, prior []store.Turn, historyLimit int) Prompt {
	text := message
	if len(snippets) > 0 {
		var b strings.Builder
		b.WriteString(ContextPreamble)
		b.WriteString("\n\n")
		b.WriteString(strings.Join(snippets, "\n"))
		b.WriteString("\n\nUser Query: ")
		b.WriteString(message)
		text = b.String()
	}

	history := prior
	if historyLimit > 0 && len(prior) > historyLimit {
		history = prior[len(prior)-historyLimit:]
		for len(history) > 0 && history[0].Role == store.RoleModel {
			history = history[1:]
		}
	}
	return Prompt{Text: text, History: history}
}

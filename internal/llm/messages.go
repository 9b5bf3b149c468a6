// Package llm builds chat prompts from retrieved context and session history and sends them
// to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"fmt"
	"strings"

	"github.com/thesandybridge/kb-index/internal/state"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SystemPrompt opens every conversation.
const SystemPrompt = "You are an expert personal and code assistant."

// contextSeparator is placed between context chunks in the prompt.
const contextSeparator = "\n\n---\n\n"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPrompt returns the final user message asking question over contextChunks.
func BuildPrompt(question string, contextChunks []string) string {
	return fmt.Sprintf("Use the following code snippets to answer the question. "+
		"Format your response in Markdown and include code where necessary.\n\n"+
		"Question:\n%s\n\nContext:\n%s", question, strings.Join(contextChunks, contextSeparator))
}

// OmittedNote is the system message standing in for turns outside the history window.
func OmittedNote(n int) string {
	return fmt.Sprintf("%d earlier turns in this session were omitted.", n)
}

// BuildMessages returns the system prompt, at most window turns of session history (with a
// single note when older turns were left out) and the prompt for question.
func BuildMessages(session *state.SessionState, window int, question string, contextChunks []string) []Message {
	turns, omitted := state.WindowHistory(session, window)
	msgs := make([]Message, 0, 3+2*len(turns))
	msgs = append(msgs, Message{Role: RoleSystem, Content: SystemPrompt})
	if omitted > 0 {
		msgs = append(msgs, Message{Role: RoleSystem, Content: OmittedNote(omitted)})
	}
	for _, t := range turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.Query},
			Message{Role: RoleAssistant, Content: t.Response})
	}
	return append(msgs, Message{Role: RoleUser, Content: BuildPrompt(question, contextChunks)})
}

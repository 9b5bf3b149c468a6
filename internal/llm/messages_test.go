package llm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesandybridge/kb-index/internal/state"
)

func sessionWithTurns(n int) *state.SessionState {
	s := &state.SessionState{ID: "s"}
	for i := 1; i <= n; i++ {
		s.Queries = append(s.Queries, fmt.Sprintf("q%d", i))
		s.Responses = append(s.Responses, fmt.Sprintf("a%d", i))
	}
	return s
}

func TestBuildMessages_windowsLongHistory(t *testing.T) {
	msgs := BuildMessages(sessionWithTurns(8), state.DefaultHistoryWindow, "what now?", []string{"ctx"})

	// system + note + 5 turns * 2 + final prompt
	require.Len(t, msgs, 13)
	assert.Equal(t, Message{Role: RoleSystem, Content: SystemPrompt}, msgs[0])
	assert.Equal(t, Message{Role: RoleSystem, Content: "3 earlier turns in this session were omitted."}, msgs[1])
	assert.Equal(t, Message{Role: RoleUser, Content: "q4"}, msgs[2])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "a4"}, msgs[3])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "a8"}, msgs[11])
	assert.Equal(t, RoleUser, msgs[12].Role)

	notes := 0
	for _, m := range msgs {
		if strings.Contains(m.Content, "omitted") {
			notes++
		}
	}
	assert.Equal(t, 1, notes)
}

func TestBuildMessages_shortHistoryHasNoNote(t *testing.T) {
	msgs := BuildMessages(sessionWithTurns(2), 5, "q", nil)
	require.Len(t, msgs, 6)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestBuildMessages_noSession(t *testing.T) {
	msgs := BuildMessages(nil, 5, "q", nil)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("How?", []string{"one", "two"})
	assert.True(t, strings.HasPrefix(got, "Use the following code snippets to answer the question."))
	assert.Contains(t, got, "Question:\nHow?\n\nContext:\none\n\n---\n\ntwo")
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/relaybot/internal/models"
)

func newOpenAITestServer(t *testing.T, finish openai.FinishReason, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: finish,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIModelChat(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newOpenAITestServer(t, openai.FinishReasonStop, "reply", &seen)

	m, err := NewOpenAIModel("key", srv.URL+"/v1", "text-model", "chat-model", nil)
	require.NoError(t, err)

	resp, err := m.Chat(context.Background(), ChatRequest{
		Preamble: "be brief",
		Examples: []models.Example{{Input: "q", Output: "a"}},
		History:  []models.Turn{{Role: models.RoleUser, Text: "before"}, {Role: models.RoleModel, Text: "earlier"}},
		Message:  "now",
		Params:   DefaultChatParams(),
	})
	require.NoError(t, err)
	assert.Equal(t, Response{Text: "reply"}, resp)

	assert.Equal(t, "chat-model", seen.Model)
	assert.Equal(t, 1024, seen.MaxTokens)
	require.Len(t, seen.Messages, 6)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, seen.Messages[4].Role)
	assert.Equal(t, "now", seen.Messages[5].Content)
}

func TestOpenAIModelContentFilterIsBlocked(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newOpenAITestServer(t, openai.FinishReasonContentFilter, "partial", &seen)

	m, err := NewOpenAIModel("key", srv.URL+"/v1", "text-model", "chat-model", nil)
	require.NoError(t, err)

	resp, err := m.Predict(context.Background(), "prompt", DefaultTextParams())
	require.NoError(t, err)
	assert.True(t, resp.Blocked)
	assert.Equal(t, "text-model", seen.Model)
}

func TestNewOpenAIModelRequiresKey(t *testing.T) {
	_, err := NewOpenAIModel(" ", "", "a", "b", nil)
	assert.Error(t, err)
}

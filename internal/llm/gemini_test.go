package llm

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

func content(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}}
}

func TestGeminiHistory(t *testing.T) {
	tests := []struct {
		name        string
		req         ChatRequest
		wantHistory []*genai.Content
		wantMessage string
	}{
		{
			name:        "empty history",
			req:         ChatRequest{Message: "d"},
			wantMessage: "d",
		},
		{
			name: "history ending in a model turn",
			req: ChatRequest{
				History: []models.Turn{{Role: models.RoleUser, Text: "a"}, {Role: models.RoleModel, Text: "b"}},
				Message: "c",
			},
			wantHistory: []*genai.Content{content("user", "a"), content("model", "b")},
			wantMessage: "c",
		},
		{
			name: "blocked prior exchange folds into the message",
			req: ChatRequest{
				History: []models.Turn{
					{Role: models.RoleUser, Text: "a"},
					{Role: models.RoleModel, Text: "b"},
					{Role: models.RoleUser, Text: "c"},
				},
				Message: "d",
			},
			wantHistory: []*genai.Content{content("user", "a"), content("model", "b")},
			wantMessage: "c\n\nd",
		},
		{
			name: "examples precede history",
			req: ChatRequest{
				Examples: []models.Example{{Input: "q", Output: "r"}},
				History:  []models.Turn{{Role: models.RoleUser, Text: "a"}, {Role: models.RoleModel, Text: "b"}},
				Message:  "c",
			},
			wantHistory: []*genai.Content{
				content("user", "q"), content("model", "r"),
				content("user", "a"), content("model", "b"),
			},
			wantMessage: "c",
		},
		{
			name: "first exchange blocked with examples",
			req: ChatRequest{
				Examples: []models.Example{{Input: "q", Output: "r"}},
				History:  []models.Turn{{Role: models.RoleUser, Text: "a"}},
				Message:  "b",
			},
			wantHistory: []*genai.Content{content("user", "q"), content("model", "r")},
			wantMessage: "a\n\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, message := geminiHistory(tt.req)
			assert.Equal(t, tt.wantHistory, history)
			assert.Equal(t, tt.wantMessage, message)
			for i := 1; i < len(history); i++ {
				assert.NotEqual(t, history[i-1].Role, history[i].Role, "roles alternate")
			}
		})
	}
}

func TestGeminiToResponse(t *testing.T) {
	m := &GeminiModel{logger: zap.NewNop()}

	resp, err := m.toResponse(nil, &genai.BlockedError{
		Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety},
	})
	require.NoError(t, err)
	assert.True(t, resp.Blocked)

	resp, err = m.toResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Blocked)

	resp, err = m.toResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content:      &genai.Content{Role: "model", Parts: []genai.Part{genai.Text("he"), genai.Text("llo")}},
		}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, Response{Text: "hello"}, resp)

	_, err = m.toResponse(nil, errors.New("unavailable"))
	assert.Error(t, err)
}

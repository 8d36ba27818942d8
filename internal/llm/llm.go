// Package llm wraps hosted text-generation and chat endpoints behind a
// provider-neutral interface and classifies their responses.
package llm

import (
	"context"
	"strings"

	"github.com/xaenox/relaybot/internal/markdown"
	"github.com/xaenox/relaybot/internal/models"
)

// GenerationParams are passed unchanged on every model call.
type GenerationParams struct {
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	TopK            int32   `mapstructure:"top_k"`
}

// DefaultChatParams are used for multi-turn thread conversations.
func DefaultChatParams() GenerationParams {
	return GenerationParams{MaxOutputTokens: 1024, Temperature: 0.20, TopP: 0.95, TopK: 40}
}

// DefaultTextParams are used for single-shot generation.
func DefaultTextParams() GenerationParams {
	return GenerationParams{MaxOutputTokens: 1024, Temperature: 0.2, TopP: 0.8, TopK: 20}
}

// Response is a generated completion. Blocked is set when the provider
// suppressed output for policy reasons; Text is meaningless in that case.
type Response struct {
	Text    string
	Blocked bool
}

// ChatRequest carries everything needed to continue a conversation.
type ChatRequest struct {
	Preamble string
	Examples []models.Example
	History  []models.Turn
	Message  string
	Params   GenerationParams
}

type TextModel interface {
	Predict(ctx context.Context, prompt string, params GenerationParams) (Response, error)
}

type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (Response, error)
}

// Model is implemented by every provider.
type Model interface {
	TextModel
	ChatModel
	Close() error
}

// Classify applies the blocked/empty rule. A blocked response, or one whose
// text is empty once spaces and newlines are trimmed, is replaced by notice
// and reported as not accepted. Accepted text is sanitized.
func Classify(resp Response, notice string) (string, bool) {
	if resp.Blocked || len(strings.Trim(resp.Text, " \n")) < 1 {
		return notice, false
	}
	return markdown.Sanitize(resp.Text), true
}

// chatContents flattens a request into the ordered list of turns the model
// sees before the live message: few-shot pairs first, then history.
func chatContents(req ChatRequest) []models.Turn {
	turns := make([]models.Turn, 0, len(req.Examples)*2+len(req.History))
	for _, ex := range req.Examples {
		turns = append(turns,
			models.Turn{Role: models.RoleUser, Text: ex.Input},
			models.Turn{Role: models.RoleModel, Text: ex.Output},
		)
	}
	return append(turns, req.History...)
}

// mergeAdjacent joins consecutive turns from the same role. A blocked
// exchange leaves a user turn without a model reply, and chat endpoints
// expect alternating roles.
func mergeAdjacent(turns []models.Turn) []models.Turn {
	merged := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == t.Role {
			merged[n-1].Text += "\n\n" + t.Text
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

// OpenAIModel implements Model over an OpenAI-compatible chat completions
// endpoint. TopK has no equivalent there and is ignored.
type OpenAIModel struct {
	client      *openai.Client
	textModelID string
	chatModelID string
	logger      *zap.Logger
}

// NewOpenAIModel creates an OpenAI-backed model. baseURL may be empty to use
// the public API.
func NewOpenAIModel(apiKey, baseURL, textModelID, chatModelID string, logger *zap.Logger) (*OpenAIModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIModel{
		client:      openai.NewClientWithConfig(cfg),
		textModelID: textModelID,
		chatModelID: chatModelID,
		logger:      logger,
	}, nil
}

// Predict sends prompt as a lone user message.
func (m *OpenAIModel) Predict(ctx context.Context, prompt string, params GenerationParams) (Response, error) {
	return m.complete(ctx, m.textModelID, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, params)
}

// Chat replays the preamble, examples and history before the live message.
func (m *OpenAIModel) Chat(ctx context.Context, req ChatRequest) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+len(req.Examples)*2+2)
	if strings.TrimSpace(req.Preamble) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Preamble,
		})
	}
	for _, turn := range chatContents(req) {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openaiRole(turn.Role),
			Content: turn.Text,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return m.complete(ctx, m.chatModelID, messages, req.Params)
}

func (m *OpenAIModel) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage, params GenerationParams) (Response, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   int(params.MaxOutputTokens),
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, nil
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		m.logger.Info("openai filtered response", zap.String("model", model))
		return Response{Blocked: true}, nil
	}
	return Response{Text: choice.Message.Content}, nil
}

// Close is a no-op; the HTTP client holds no long-lived resources.
func (m *OpenAIModel) Close() error {
	return nil
}

func openaiRole(role models.Role) string {
	if role == models.RoleModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

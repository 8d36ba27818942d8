package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiModel implements Model using Google's Gemini API.
type GeminiModel struct {
	client      *genai.Client
	textModelID string
	chatModelID string
	logger      *zap.Logger
}

// NewGeminiModel creates a Gemini-backed model. textModelID serves Predict,
// chatModelID serves Chat.
func NewGeminiModel(ctx context.Context, apiKey, textModelID, chatModelID string, logger *zap.Logger) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(textModelID) == "" || strings.TrimSpace(chatModelID) == "" {
		return nil, errors.New("llm: gemini model ids are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}

	return &GeminiModel{
		client:      client,
		textModelID: textModelID,
		chatModelID: chatModelID,
		logger:      logger,
	}, nil
}

func (m *GeminiModel) configure(id string, params GenerationParams) *genai.GenerativeModel {
	model := m.client.GenerativeModel(id)
	model.SetTemperature(params.Temperature)
	if params.TopP > 0 {
		model.SetTopP(params.TopP)
	}
	if params.TopK > 0 {
		model.SetTopK(params.TopK)
	}
	if params.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(params.MaxOutputTokens)
	}
	return model
}

// Predict runs single-shot generation.
func (m *GeminiModel) Predict(ctx context.Context, prompt string, params GenerationParams) (Response, error) {
	model := m.configure(m.textModelID, params)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	return m.toResponse(resp, err)
}

// Chat seeds a chat session with the examples and history, then sends the
// live message.
func (m *GeminiModel) Chat(ctx context.Context, req ChatRequest) (Response, error) {
	model := m.configure(m.chatModelID, req.Params)
	if strings.TrimSpace(req.Preamble) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.Preamble))
	}

	cs := model.StartChat()
	history, message := geminiHistory(req)
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	return m.toResponse(resp, err)
}

// geminiHistory builds the seeded chat history and the live message. The
// live message is always sent as a user turn, so a trailing user turn left
// by a blocked exchange is folded into it.
func geminiHistory(req ChatRequest) ([]*genai.Content, string) {
	var history []*genai.Content
	for _, turn := range mergeAdjacent(chatContents(req)) {
		history = append(history, &genai.Content{
			Role:  geminiRole(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	message := req.Message
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		if prev, ok := history[n-1].Parts[0].(genai.Text); ok {
			message = string(prev) + "\n\n" + message
		}
		history = history[:n-1]
	}
	return history, message
}

func (m *GeminiModel) toResponse(resp *genai.GenerateContentResponse, err error) (Response, error) {
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			m.logger.Info("gemini blocked response", zap.String("reason", blocked.Error()))
			return Response{Blocked: true}, nil
		}
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Response{}, nil
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return Response{Blocked: true}, nil
	}
	if candidate.Content == nil {
		return Response{}, nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return Response{Text: text.String()}, nil
}

// Close releases resources held by the Gemini client.
func (m *GeminiModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func geminiRole(role models.Role) string {
	if role == models.RoleModel {
		return "model"
	}
	return "user"
}

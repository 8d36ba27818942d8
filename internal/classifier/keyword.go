package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/relaybot/internal/llm"
	"github.com/xaenox/relaybot/internal/prompts"
	"go.uber.org/zap"
)

// KeywordExtractor asks the text model for a topic keyword using a
// few-shot prompt.
type KeywordExtractor struct {
	model  llm.TextModel
	bundle *prompts.Bundle
	params llm.GenerationParams
	logger *zap.Logger
}

func NewKeywordExtractor(model llm.TextModel, bundle *prompts.Bundle, params llm.GenerationParams, logger *zap.Logger) *KeywordExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordExtractor{
		model:  model,
		bundle: bundle,
		params: params,
		logger: logger,
	}
}

// Extract returns the keyword for prompt, or the policy notice when the
// model blocked or returned nothing.
func (e *KeywordExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	resp, err := e.model.Predict(ctx, e.bundle.KeywordPrompt(prompt), e.params)
	if err != nil {
		return "", fmt.Errorf("classifier: keyword generation: %w", err)
	}

	keyword, accepted := llm.Classify(resp, e.bundle.PolicyNotice)
	if !accepted {
		e.logger.Warn("Keyword response blocked or empty", zap.Bool("blocked", resp.Blocked))
	}
	return strings.TrimSpace(keyword), nil
}

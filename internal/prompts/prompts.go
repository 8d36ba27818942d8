// Package prompts loads the response-style preamble, few-shot exemplars and
// keyword template used when talking to the model.
package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/xaenox/relaybot/internal/models"
)

//go:embed default.yaml
var defaultBundle []byte

// KeywordTemplate describes the few-shot keyword extraction prompt.
type KeywordTemplate struct {
	Heading     string           `mapstructure:"heading"`
	Instruction string           `mapstructure:"instruction"`
	Label       string           `mapstructure:"label"`
	Examples    []models.Example `mapstructure:"examples"`
}

// Bundle is the full set of prompt texts.
type Bundle struct {
	Preamble     string           `mapstructure:"preamble"`
	Examples     []models.Example `mapstructure:"examples"`
	PolicyNotice string           `mapstructure:"policy_notice"`
	Keyword      KeywordTemplate  `mapstructure:"keyword"`
}

// Default returns the embedded bundle.
func Default() (*Bundle, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultBundle)); err != nil {
		return nil, fmt.Errorf("prompts: read embedded bundle: %w", err)
	}
	return decode(v)
}

// Load reads a bundle from path. Keys missing from the file keep their
// embedded defaults.
func Load(path string) (*Bundle, error) {
	if path == "" {
		return Default()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultBundle)); err != nil {
		return nil, fmt.Errorf("prompts: read embedded bundle: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Bundle, error) {
	var b Bundle
	if err := v.Unmarshal(&b); err != nil {
		return nil, fmt.Errorf("prompts: decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the texts every request depends on.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.PolicyNotice) == "" {
		return errors.New("prompts: policy_notice is required")
	}
	if strings.TrimSpace(b.Keyword.Instruction) == "" || strings.TrimSpace(b.Keyword.Label) == "" {
		return errors.New("prompts: keyword instruction and label are required")
	}
	return nil
}

// KeywordPrompt renders the few-shot keyword prompt for text, leaving the
// final keyword slot empty for the model to fill.
func (b *Bundle) KeywordPrompt(text string) string {
	var sb strings.Builder
	kw := b.Keyword
	if kw.Heading != "" {
		sb.WriteString(kw.Heading)
		sb.WriteString("\n\n")
	}
	for _, ex := range kw.Examples {
		sb.WriteString(kw.Instruction)
		sb.WriteString(ex.Input)
		sb.WriteString("\n")
		sb.WriteString(kw.Label)
		sb.WriteString(" ")
		sb.WriteString(ex.Output)
		sb.WriteString("\n\n")
	}
	sb.WriteString(kw.Instruction)
	sb.WriteString(text)
	sb.WriteString("\n")
	sb.WriteString(kw.Label)
	return sb.String()
}

package classifier

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Extractor derives a single topic keyword from a prompt.
type Extractor interface {
	Extract(ctx context.Context, prompt string) (string, error)
}

const fallbackKeywordRunes = 30

// FallbackKeyword is used when the model cannot be reached. It prefers the
// first hashtag in the prompt and otherwise truncates the first line.
func FallbackKeyword(prompt string) string {
	for _, word := range strings.Fields(prompt) {
		if strings.HasPrefix(word, "#") {
			if tag := strings.TrimPrefix(word, "#"); tag != "" {
				return tag
			}
		}
	}

	line := strings.TrimSpace(prompt)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) > fallbackKeywordRunes {
		line = string([]rune(line)[:fallbackKeywordRunes])
	}
	return line
}

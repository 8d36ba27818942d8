// Package markdown strips presentation markup from model output so it reads
// cleanly on plain-text chat surfaces.
package markdown

import (
	"regexp"
	"strings"
)

var (
	fencedCode = regexp.MustCompile("(?s)```(.+?)```")
	inlineCode = regexp.MustCompile("`(.+?)`")
	bold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italic     = regexp.MustCompile(`\*(.+?)\*`)
	headerLine = regexp.MustCompile(`(?m)^#.*$`)
)

const maxHeaderLevel = 6

// exampleLabel leaks from few-shot prompts into completions.
const exampleLabel = "[Example]:"

// Sanitize removes code spans, emphasis, headers and template artifacts.
// Fences are unwrapped before single backticks so a triple fence is never
// split into stray backtick pairs.
func Sanitize(text string) string {
	text = fencedCode.ReplaceAllString(text, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = bold.ReplaceAllString(text, "$1")
	text = italic.ReplaceAllString(text, "$1")
	text = headerLine.ReplaceAllStringFunc(text, rewriteHeader)
	return strings.ReplaceAll(text, exampleLabel, "")
}

// rewriteHeader turns "## Title" into "---Title---". A marker with no title
// becomes an empty line.
func rewriteHeader(line string) string {
	level := 0
	for level < maxHeaderLevel && level < len(line) && line[level] == '#' {
		level++
	}
	title := strings.TrimLeft(line[level:], " \t")
	if strings.TrimSpace(title) == "" {
		return ""
	}
	return "---" + title + "---"
}

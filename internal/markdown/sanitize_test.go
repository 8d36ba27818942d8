package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mixed markup", "Use `x` and **bold** and *it* and ```block```", "Use x and bold and it and block"},
		{"header", "# Title\nBody", "---Title---\nBody"},
		{"deep header", "###### Deep", "---Deep---"},
		{"headers on every line", "## One\ntext\n### Two", "---One---\ntext\n---Two---"},
		{"multi-line fence", "```go\nfmt.Println(1)\n```", "go\nfmt.Println(1)\n"},
		{"first closing fence wins", "```a``` mid ```b```", "a mid b"},
		{"non-greedy bold", "**a** and **b**", "a and b"},
		{"header text starts at first non-space", "#   Spaced", "---Spaced---"},
		{"blank header line", "#  \nx", "\nx"},
		{"bare header marker", "#\nBody", "\nBody"},
		{"hashtag after marker", "# #tag", "---#tag---"},
		{"seven markers", "####### seven", "---# seven---"},
		{"example label", "[Example]: answer", " answer"},
		{"plain", "nothing to strip", "nothing to strip"},
		{"empty", "", ""},
		{"lone asterisk list", "* item\n* other", "* item\n* other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain sentence",
		"line one\nline two",
		"---Title---\nBody",
		"Use x and bold and it and block",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), in)
	}
}

func TestSanitizeLeavesNoMarkers(t *testing.T) {
	out := Sanitize("# H\n**b** *i* `c` ```f```")
	assert.NotContains(t, out, "`")
	assert.NotContains(t, out, "*")
	assert.NotRegexp(t, `(?m)^#`, out)

	out = Sanitize("#\n## \n###\ttext")
	assert.NotRegexp(t, `(?m)^#`, out)
	assert.Equal(t, "\n\n---text---", out)
}

package forms

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	markdown    = goldmark.New()
	htmlPolicy  = bluemonday.UGCPolicy()
	mdEscaper   = strings.NewReplacer(markdownEscapes()...)
	lineBreaker = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
)

func markdownEscapes() []string {
	const special = "\\`*_{}[]()#+-.!|<>&~"
	pairs := make([]string, 0, len(special)*2)
	for _, r := range special {
		pairs = append(pairs, string(r), "\\"+string(r))
	}
	return pairs
}

func escapeMarkdown(s string) string {
	return mdEscaper.Replace(lineBreaker.Replace(strings.TrimSpace(s)))
}

// RenderHTMLBody renders a heading plus one "field: value" list item per field, sorted by name.
// Submitted values are escaped before rendering and the output is sanitized.
func RenderHTMLBody(title string, fields map[string]string) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var src strings.Builder
	fmt.Fprintf(&src, "# %s\n\n", escapeMarkdown(title))
	for _, k := range keys {
		fmt.Fprintf(&src, "- **%s**: %s\n", escapeMarkdown(k), escapeMarkdown(fields[k]))
	}

	var out bytes.Buffer
	if err := markdown.Convert([]byte(src.String()), &out); err != nil {
		return "", fmt.Errorf("forms: render html body: %w", err)
	}
	return htmlPolicy.Sanitize(out.String()), nil
}

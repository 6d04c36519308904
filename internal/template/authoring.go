package template

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// placeholderToken is alphanumeric so markdown and URL escaping leave it intact.
const placeholderToken = "zqvar%dzq"

var textPolicy = bluemonday.StrictPolicy()

// MarkdownToHTML converts a markdown pattern to an html pattern, keeping
// placeholders intact even inside link destinations.
func MarkdownToHTML(src string) (string, error) {
	protected, names := protectPlaceholders(src)

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(protected), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}

	return restorePlaceholders(buf.String(), names), nil
}

// TextFromHTML derives a plain text pattern from an html pattern by stripping
// all markup. Placeholders in text nodes survive; those in attributes are dropped.
func TextFromHTML(src string) string {
	stripped := html.UnescapeString(textPolicy.Sanitize(src))

	lines := strings.Split(stripped, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func protectPlaceholders(src string) (string, []string) {
	var b strings.Builder
	names := make([]string, 0)
	for _, seg := range scan(src) {
		if !seg.placeholder {
			b.WriteString(seg.text)
			continue
		}
		fmt.Fprintf(&b, placeholderToken, len(names))
		names = append(names, seg.text)
	}
	return b.String(), names
}

func restorePlaceholders(src string, names []string) string {
	if len(names) == 0 {
		return src
	}
	pairs := make([]string, 0, len(names)*2)
	for i, name := range names {
		pairs = append(pairs, strings.Replace(placeholderToken, "%d", strconv.Itoa(i), 1), openDelim+name+closeDelim)
	}
	return strings.NewReplacer(pairs...).Replace(src)
}

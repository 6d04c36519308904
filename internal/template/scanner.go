// Package template renders {{identifier}} placeholders in message templates.
package template

import "strings"

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder bool
}

// scan splits text into literal and placeholder segments in one pass.
// Delimiter pairs whose content is not a valid identifier stay literal.
func scan(text string) []segment {
	var segments []segment
	literalStart := 0
	i := 0
	// closeAt is the last "}}" found; no other "}}" lies between it and any
	// later nameStart it still covers.
	closeAt := -1

	for i < len(text) {
		open := strings.Index(text[i:], openDelim)
		if open < 0 {
			break
		}
		open += i

		nameStart := open + len(openDelim)
		if closeAt < nameStart {
			closeRel := strings.Index(text[nameStart:], closeDelim)
			if closeRel < 0 {
				break
			}
			closeAt = nameStart + closeRel
		}
		nameEnd := closeAt
		name := text[nameStart:nameEnd]

		if !isIdentifier(name) {
			// Resume right after the opening brace so "{{{name}}" still finds "{{name}}".
			i = open + 1
			continue
		}

		if open > literalStart {
			segments = append(segments, segment{text: text[literalStart:open]})
		}
		segments = append(segments, segment{text: name, placeholder: true})

		i = nameEnd + len(closeDelim)
		literalStart = i
	}

	if literalStart < len(text) {
		segments = append(segments, segment{text: text[literalStart:]})
	}
	return segments
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

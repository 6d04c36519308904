package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

// YearVariable is injected with the current calendar year unless the caller supplies it.
const YearVariable = "year"

// Result is the rendered output of a template.
type Result struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// Validation reports which declared variables are absent from a variable bag.
type Validation struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

// Render substitutes placeholders in every pattern of tpl. Unknown placeholders
// render as the empty string.
func Render(tpl domain.Template, vars map[string]any, now time.Time) Result {
	bag := withYear(vars, now)

	return Result{
		Subject: Substitute(tpl.Subject, bag),
		HTML:    Substitute(tpl.HTML, bag),
		Text:    Substitute(tpl.Text, bag),
	}
}

// Substitute replaces each {{name}} in text with the stringified value from vars.
func Substitute(text string, vars map[string]any) string {
	if !strings.Contains(text, openDelim) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range scan(text) {
		if !seg.placeholder {
			b.WriteString(seg.text)
			continue
		}
		if v, ok := vars[seg.text]; ok {
			b.WriteString(stringify(v))
		}
	}
	return b.String()
}

// ValidateVariables returns the declared variables of tpl missing from vars, in
// declared order. Presence of the key is checked, not its value.
func ValidateVariables(tpl domain.Template, vars map[string]any) Validation {
	missing := make([]string, 0)
	for _, name := range tpl.Variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return Validation{Valid: len(missing) == 0, Missing: missing}
}

// ExtractVariables lists placeholder names across texts, deduplicated in
// first-occurrence order.
func ExtractVariables(texts ...string) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, text := range texts {
		for _, seg := range scan(text) {
			if !seg.placeholder {
				continue
			}
			if _, ok := seen[seg.text]; ok {
				continue
			}
			seen[seg.text] = struct{}{}
			names = append(names, seg.text)
		}
	}
	return names
}

func withYear(vars map[string]any, now time.Time) map[string]any {
	bag := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		bag[k] = v
	}
	if _, ok := bag[YearVariable]; !ok {
		bag[YearVariable] = now.Year()
	}
	return bag
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

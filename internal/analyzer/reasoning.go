package analyzer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/registry"
)

const maxSentenceRunes = 240

// simplifyReasoning builds the short, user-facing explanation: the first
// sentence of the model's text, the triggered categories and a review
// recommendation when anything is high.
func simplifyReasoning(full string, flags []domain.Flag, cats *registry.Categories) string {
	var parts []string
	if s := firstSentence(full); s != "" {
		parts = append(parts, s)
	}

	if len(flags) > 0 {
		triggered := make([]string, 0, len(flags))
		high := false
		for _, f := range flags {
			name := f.Category
			if c, ok := cats.Get(f.Category); ok {
				name = c.Name
			}
			triggered = append(triggered, fmt.Sprintf("%s (%s)", name, f.Severity))
			if f.Severity == domain.SeverityHigh {
				high = true
			}
		}
		parts = append(parts, "Triggered categories: "+strings.Join(triggered, ", ")+".")
		if high {
			parts = append(parts, "High severity detected; human review is recommended.")
		}
	}

	if len(parts) == 0 {
		return "No concerns identified."
	}
	return strings.Join(parts, " ")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = strings.TrimSpace(text[:nl])
	}

	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			return domain.Truncate(string(runes[:i+1]), maxSentenceRunes)
		}
	}
	return domain.Truncate(text, maxSentenceRunes)
}

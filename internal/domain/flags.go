package domain

import (
	"fmt"
	"strings"
)

// ExcerptRunes bounds the message excerpt stored on a flag.
const ExcerptRunes = 120

// Truncate cuts s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Excerpt is the flag excerpt for a message body.
func Excerpt(content string) string {
	return Truncate(strings.TrimSpace(content), ExcerptRunes)
}

// SynthesizedReason explains a flag derived from the severity breakdown
// rather than reported by the model.
func SynthesizedReason(name string, sev Severity) string {
	return fmt.Sprintf("%s concern detected with %s severity.", name, sev)
}

// DedupeFlags keeps one flag per category in first-seen order. The highest
// severity wins; ties keep the earlier flag.
func DedupeFlags(flags []Flag) []Flag {
	index := make(map[string]int, len(flags))
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		if j, seen := index[f.Category]; seen {
			if f.Severity.Rank() > out[j].Severity.Rank() {
				out[j] = f
			}
			continue
		}
		index[f.Category] = len(out)
		out = append(out, f)
	}
	return out
}

// SynthesizeMissingFlags appends a flag, built by synth, for every category in
// order whose breakdown severity is above none and which has no flag yet.
func SynthesizeMissingFlags(flags []Flag, breakdown SeverityBreakdown, order []string, synth func(category string, sev Severity) Flag) []Flag {
	have := make(map[string]bool, len(flags))
	for _, f := range flags {
		have[f.Category] = true
	}
	for _, cat := range order {
		sev := breakdown[cat]
		if sev.Rank() == 0 || have[cat] {
			continue
		}
		have[cat] = true
		flags = append(flags, synth(cat, sev))
	}
	return flags
}

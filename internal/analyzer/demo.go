package analyzer

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/registry"
)

// demoFlagging scans the message for registry keywords. One hit grades a
// category medium, two or more grade it high.
func demoFlagging(msg domain.Message, cats *registry.Categories) rawFlagging {
	lower := strings.ToLower(msg.Content)
	out := rawFlagging{SeverityBreakdown: make(flexBreakdown, cats.Len())}

	var triggered []string
	for _, c := range cats.All() {
		hits := 0
		for _, kw := range c.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		sev := domain.SeverityNone
		switch {
		case hits >= 2:
			sev = domain.SeverityHigh
		case hits == 1:
			sev = domain.SeverityMedium
		}
		out.SeverityBreakdown[c.ID] = flexString(sev)
		if sev != domain.SeverityNone {
			triggered = append(triggered, c.Name)
		}
	}

	if len(triggered) == 0 {
		out.Reasoning = "Demo mode: no registry keywords found in this message."
		return out
	}
	out.ShouldFlag = true
	out.Reasoning = flexString(fmt.Sprintf("Demo mode: keyword scan matched %s.", strings.Join(triggered, ", ")))
	return out
}

// demoScore is a stable pseudo-score in [-2, 4] so demo charts have shape.
func demoScore(principleID, content string) int {
	h := fnv.New32a()
	h.Write([]byte(principleID))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return int(h.Sum32()%7) - 2
}

func demoSummary(in SummaryInput) string {
	users, assistants := 0, 0
	for _, m := range in.Messages {
		if m.Role == domain.RoleUser {
			users++
		} else {
			assistants++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Demo summary of %d messages (%d user, %d assistant).\n", len(in.Messages), users, assistants)
	if len(in.Flags) > 0 {
		seen := make(map[string]bool)
		var cats []string
		for _, f := range in.Flags {
			if !seen[f.Category] {
				seen[f.Category] = true
				cats = append(cats, f.Category)
			}
		}
		fmt.Fprintf(&b, "- %d flags raised: %s.\n", len(in.Flags), strings.Join(cats, ", "))
	} else {
		b.WriteString("- No flags raised.\n")
	}
	if strings.TrimSpace(in.AdditionalContext) != "" {
		b.WriteString("- Reviewer context was provided.\n")
	}
	b.WriteString("- Provide a real API key for a model-written summary.")
	return b.String()
}

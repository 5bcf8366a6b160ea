package conversation

import (
	"slices"
	"time"

	"github.com/tjfontaine/convolens/internal/domain"
)

// reconcileFlagging makes a result self-consistent before it is stored: flags
// point at msg, carry ids and valid severities, appear at most once per
// category (highest severity wins), and every non-none breakdown category
// has a flag.
func reconcileFlagging(msg *domain.Message, result domain.FlaggingAnalysis, now time.Time, newID func() string) domain.FlaggingAnalysis {
	flags := make([]domain.Flag, 0, len(result.Flags))
	for _, f := range result.Flags {
		f.MessageID = msg.ID
		f.Severity = domain.NormalizeFlagSeverity(string(f.Severity))
		if f.ID == "" {
			f.ID = newID()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		flags = append(flags, f)
	}

	breakdown := make(domain.SeverityBreakdown, len(result.SeverityBreakdown))
	for cat, sev := range result.SeverityBreakdown {
		breakdown[cat] = domain.NormalizeBreakdownSeverity(string(sev))
	}
	flags = domain.SynthesizeMissingFlags(domain.DedupeFlags(flags), breakdown, sortedKeys(breakdown),
		func(cat string, sev domain.Severity) domain.Flag {
			return domain.Flag{
				ID:        newID(),
				MessageID: msg.ID,
				Category:  cat,
				Severity:  sev,
				Reason:    domain.SynthesizedReason(cat, sev),
				Excerpt:   domain.Excerpt(msg.Content),
				CreatedAt: now,
			}
		})

	result.Flags = flags
	result.SeverityBreakdown = breakdown
	if len(flags) > 0 {
		result.ShouldFlag = true
	}
	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = now
	}
	if result.Status == "" {
		result.Status = domain.StatusOK
	}
	return result
}

func removeFlagsFor(flags []domain.Flag, messageID string) []domain.Flag {
	out := flags[:0]
	for _, f := range flags {
		if f.MessageID != messageID {
			out = append(out, f)
		}
	}
	return out
}

func removeScoresFor(scores []domain.PrincipleScore, messageID string) []domain.PrincipleScore {
	out := scores[:0]
	for _, sc := range scores {
		if sc.MessageID != messageID {
			out = append(out, sc)
		}
	}
	return out
}

func sortedKeys(b domain.SeverityBreakdown) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

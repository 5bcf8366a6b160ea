package analyzer

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/registry"
)

// heuristicPattern marks unparseable model output as a concern. Keywords
// match at the start of a word.
var heuristicPattern = regexp.MustCompile(
	`\b(concern|harmful|flag|inappropriate|risk|unsafe|dangerous|violat|self-harm|suicid)`)

// jsonKey matches an object key such as "shouldFlag": in partial JSON.
var jsonKey = regexp.MustCompile(`"(?:[^"\\]|\\.)*"\s*:`)

// FlagInput is one message to assess plus the context it is judged in.
type FlagInput struct {
	Message           domain.Message
	Context           []domain.Turn
	AdditionalContext string
	Credentials       domain.Credentials
	Model             string
}

// Flagger produces safety assessments against an injected category registry.
type Flagger struct {
	base
	categories *registry.Categories
}

// NewFlagger creates a flagging analyzer.
func NewFlagger(gw gateway.Gateway, categories *registry.Categories, opts ...Option) *Flagger {
	return &Flagger{base: newBase(gw, opts), categories: categories}
}

// Categories returns the registry the flagger reports against.
func (f *Flagger) Categories() *registry.Categories {
	return f.categories
}

type rawFlag struct {
	Category flexString `json:"category"`
	Severity flexString `json:"severity"`
	Reason   flexString `json:"reason"`
	Excerpt  flexString `json:"excerpt"`
}

type rawFlagging struct {
	ShouldFlag        flexBool      `json:"shouldFlag"`
	Reasoning         flexString    `json:"reasoning"`
	SeverityBreakdown flexBreakdown `json:"severityBreakdown"`
	Flags             []rawFlag     `json:"flags"`
}

// flaggingKeys are the fields that make an object a flagging verdict.
var flaggingKeys = []string{"shouldFlag", "severityBreakdown", "flags"}

// Flag assesses in.Message. It never fails: provider and parse errors yield a
// degraded analysis with every category at none.
func (f *Flagger) Flag(ctx context.Context, in FlagInput) domain.FlaggingAnalysis {
	demo := f.isDemo(in.Credentials)
	ctx, span := startSpan(ctx, "analyzer.flag", in.Model, demo,
		attribute.String("message.id", in.Message.ID),
		attribute.Int("context.turns", len(in.Context)),
	)
	defer span.End()

	var (
		result   domain.FlaggingAnalysis
		strategy Strategy
	)
	if demo {
		result, strategy = f.finalize(in, demoFlagging(in.Message, f.categories), domain.StatusOK, domain.FailureNone), StrategyDemo
	} else {
		raw, err := f.chat(ctx, gateway.PurposeFlag, in.Credentials, in.Model,
			flaggingSystemPrompt(f.categories),
			analysisUserPrompt(in.Context, in.Message, in.AdditionalContext))
		if err != nil {
			recordSpanError(span, err)
			f.logger.Warn("flagging call failed",
				slog.String("message_id", in.Message.ID),
				slog.String("error", err.Error()),
			)
			result, strategy = f.failed(in, err), StrategyFallback
		} else {
			result, strategy = f.interpret(in, raw)
		}
	}

	span.SetAttributes(
		attribute.String("parse.strategy", string(strategy)),
		attribute.Bool("flag.should_flag", result.ShouldFlag),
		attribute.Int("flag.count", len(result.Flags)),
	)
	metrics.ObserveAnalysis("flag", string(result.Status))
	metrics.ObserveParseStrategy("flag", string(strategy))
	return result
}

// interpret runs the parse chain over raw model output.
func (f *Flagger) interpret(in FlagInput, raw string) (domain.FlaggingAnalysis, Strategy) {
	if p := parseJSON[rawFlagging](raw, flaggingKeys...); p.ok {
		return f.finalize(in, p.value, domain.StatusOK, domain.FailureNone), p.strategy
	}

	f.logger.Debug("flagging output unparseable, using keyword heuristic",
		slog.String("message_id", in.Message.ID),
		slog.Int("raw_len", len(raw)),
	)
	return f.finalize(in, heuristicFlagging(raw), domain.StatusDegraded, domain.FailureParse), StrategyHeuristic
}

// heuristicFlagging scans unparseable output for concern words. JSON keys are
// removed first so a truncated verdict does not match on its own field names.
func heuristicFlagging(raw string) rawFlagging {
	text := strings.ToLower(jsonKey.ReplaceAllString(raw, " "))
	if m := heuristicPattern.FindStringSubmatch(text); m != nil {
		return rawFlagging{
			ShouldFlag: true,
			Reasoning:  flexString("The analysis response could not be parsed, but it mentions a potential concern (" + m[1] + ")."),
			Flags: []rawFlag{{
				Category: registry.OtherCategory,
				Severity: flexString(domain.SeverityMedium),
				Reason:   "Unstructured analysis response indicated a potential concern.",
			}},
		}
	}
	return rawFlagging{
		Reasoning: "The analysis response could not be parsed and no concern keywords were found.",
	}
}

// failed is the terminal result for a provider error.
func (f *Flagger) failed(in FlagInput, err error) domain.FlaggingAnalysis {
	msg := domain.AsAPIError(err).UserMessage()
	result := f.finalize(in, rawFlagging{}, domain.StatusDegraded, domain.FailureKindOf(err))
	result.Reasoning = "Flagging analysis could not be completed: " + msg
	result.FullReasoning = err.Error()
	return result
}

// finalize normalizes raw output into a consistent analysis: the breakdown
// covers every category, flags are deduplicated by category, and every
// non-none breakdown category has a flag.
func (f *Flagger) finalize(in FlagInput, raw rawFlagging, status domain.AnalysisStatus, kind domain.FailureKind) domain.FlaggingAnalysis {
	now := f.now()

	breakdown := make(domain.SeverityBreakdown, f.categories.Len())
	for _, id := range f.categories.IDs() {
		breakdown[id] = domain.SeverityNone
	}
	for key, sev := range raw.SeverityBreakdown {
		id := f.categories.Resolve(key)
		if id == registry.OtherCategory {
			continue
		}
		s := domain.NormalizeBreakdownSeverity(string(sev))
		if s.Rank() > breakdown[id].Rank() {
			breakdown[id] = s
		}
	}

	reported := make([]domain.Flag, 0, len(raw.Flags))
	for _, rf := range raw.Flags {
		cat := f.categories.Resolve(string(rf.Category))
		flag := domain.Flag{
			MessageID: in.Message.ID,
			Category:  cat,
			Severity:  domain.NormalizeFlagSeverity(string(rf.Severity)),
			Reason:    strings.TrimSpace(string(rf.Reason)),
			Excerpt:   strings.TrimSpace(string(rf.Excerpt)),
			CreatedAt: now,
		}
		if flag.Reason == "" {
			flag.Reason = synthesizedReason(f.categories, cat, flag.Severity)
		}
		if flag.Excerpt == "" {
			flag.Excerpt = domain.Excerpt(in.Message.Content)
		}
		reported = append(reported, flag)
	}
	reported = domain.DedupeFlags(reported)

	// Keep the breakdown at least as severe as the flags it summarizes.
	for _, flag := range reported {
		if cur, ok := breakdown[flag.Category]; ok && flag.Severity.Rank() > cur.Rank() {
			breakdown[flag.Category] = flag.Severity
		}
	}

	all := domain.SynthesizeMissingFlags(reported, breakdown, f.categories.IDs(), func(cat string, sev domain.Severity) domain.Flag {
		return domain.Flag{
			MessageID: in.Message.ID,
			Category:  cat,
			Severity:  sev,
			Reason:    synthesizedReason(f.categories, cat, sev),
			Excerpt:   domain.Excerpt(in.Message.Content),
			CreatedAt: now,
		}
	})

	byCategory := make(map[string]domain.Flag, len(all))
	order := make([]string, 0, len(all))
	for _, flag := range all {
		byCategory[flag.Category] = flag
		order = append(order, flag.Category)
	}
	flags := make([]domain.Flag, 0, len(order))
	for _, cat := range orderFlags(f.categories, order) {
		flag := byCategory[cat]
		flag.ID = f.newID()
		flags = append(flags, flag)
	}

	full := strings.TrimSpace(string(raw.Reasoning))
	return domain.FlaggingAnalysis{
		ShouldFlag:        bool(raw.ShouldFlag) || len(flags) > 0,
		Reasoning:         simplifyReasoning(full, flags, f.categories),
		FullReasoning:     full,
		Flags:             flags,
		SeverityBreakdown: breakdown,
		AnalyzedAt:        now,
		Status:            status,
		FailureKind:       kind,
	}
}

// orderFlags sorts categories into registry order with other last.
func orderFlags(cats *registry.Categories, seen []string) []string {
	present := make(map[string]bool, len(seen))
	for _, c := range seen {
		present[c] = true
	}
	out := make([]string, 0, len(seen))
	for _, id := range cats.IDs() {
		if present[id] {
			out = append(out, id)
		}
	}
	if present[registry.OtherCategory] {
		out = append(out, registry.OtherCategory)
	}
	return out
}

func synthesizedReason(cats *registry.Categories, id string, sev domain.Severity) string {
	name := id
	if c, ok := cats.Get(id); ok {
		name = c.Name
	}
	return domain.SynthesizedReason(name, sev)
}

package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/tokens"
)

const defaultTokenBudget = 6000

// SummaryInput is the filtered conversation plus its filtered flags.
type SummaryInput struct {
	Messages          []domain.Message
	Flags             []domain.Flag
	AdditionalContext string
	// Format describes the output shape, e.g. "a bulleted list".
	Format      string
	Credentials domain.Credentials
	Model       string
}

// Summarizer writes a free-text digest of a conversation.
type Summarizer struct {
	base
	counter tokens.Counter
}

// NewSummarizer creates a summarizer. counter may be nil, in which case the
// character estimator is used.
func NewSummarizer(gw gateway.Gateway, counter tokens.Counter, opts ...Option) *Summarizer {
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	return &Summarizer{base: newBase(gw, opts), counter: counter}
}

// Summarize never fails; errors are reported in the summary text.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) domain.Summary {
	demo := s.isDemo(in.Credentials)
	ctx, span := startSpan(ctx, "analyzer.summarize", in.Model, demo,
		attribute.Int("messages", len(in.Messages)),
		attribute.Int("flags", len(in.Flags)),
	)
	defer span.End()

	result := domain.Summary{GeneratedAt: s.now(), Status: domain.StatusOK}
	switch {
	case len(in.Messages) == 0:
		result.Text = "No messages to summarize."
	case demo:
		result.Text = demoSummary(in)
	default:
		prompt, omitted := s.userPrompt(in)
		span.SetAttributes(attribute.Int("transcript.omitted", omitted))

		text, err := s.chat(ctx, gateway.PurposeSummary, in.Credentials, in.Model,
			summarySystemPrompt(in.Format), prompt)
		switch {
		case err != nil:
			recordSpanError(span, err)
			s.logger.Warn("summary call failed", slog.String("error", err.Error()))
			result.Text = "Summary could not be generated: " + domain.AsAPIError(err).UserMessage()
			result.Status = domain.StatusDegraded
			result.FailureKind = domain.FailureKindOf(err)
		case strings.TrimSpace(text) == "":
			result.Text = "Summary could not be generated: the model returned an empty response."
			result.Status = domain.StatusDegraded
			result.FailureKind = domain.FailureProvider
		default:
			result.Text = strings.TrimSpace(text)
		}
	}

	metrics.ObserveAnalysis("summary", string(result.Status))
	return result
}

// userPrompt renders the history, flags and context sections, dropping the
// oldest messages until the history fits the token budget. It returns the
// number of messages left out.
func (s *Summarizer) userPrompt(in SummaryInput) (string, int) {
	lines := make([]string, len(in.Messages))
	for i, m := range in.Messages {
		lines[i] = fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Format(time.RFC3339), strings.ToUpper(string(m.Role)), m.Content)
	}

	used := 0
	first := len(lines)
	for first > 0 {
		n := s.counter.CountText(in.Model, lines[first-1]) + 1
		if used+n > s.tokenBudget && first < len(lines) {
			break
		}
		used += n
		first--
	}

	var b strings.Builder
	b.WriteString("Conversation history:\n")
	if first > 0 {
		fmt.Fprintf(&b, "[%d earlier messages omitted]\n", first)
	}
	for _, l := range lines[first:] {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	if len(in.Flags) > 0 {
		b.WriteString("\nFlagged content:\n")
		for _, f := range in.Flags {
			fmt.Fprintf(&b, "- %s (%s): %s", f.Category, f.Severity, f.Reason)
			if f.Excerpt != "" {
				fmt.Fprintf(&b, " Excerpt: %q", f.Excerpt)
			}
			b.WriteByte('\n')
		}
	}

	if extra := strings.TrimSpace(in.AdditionalContext); extra != "" {
		b.WriteString("\nAdditional context:\n")
		b.WriteString(extra)
		b.WriteByte('\n')
	}
	return b.String(), first
}

package analyzer

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/registry"
)

// ScoreInput has the same shape as FlagInput.
type ScoreInput = FlagInput

// Scorer rates a message against every registered principle.
type Scorer struct {
	base
	principles *registry.Principles
}

// NewScorer creates a principle scorer.
func NewScorer(gw gateway.Gateway, principles *registry.Principles, opts ...Option) *Scorer {
	return &Scorer{base: newBase(gw, opts), principles: principles}
}

// Principles returns the registry the scorer iterates.
func (s *Scorer) Principles() *registry.Principles {
	return s.principles
}

type rawScore struct {
	PrincipleID flexString `json:"principleId"`
	Score       flexInt    `json:"score"`
	Reasoning   flexString `json:"reasoning"`
}

type rawScoring struct {
	Scores []rawScore `json:"scores"`
}

// Score returns exactly one score per registered principle, in registry
// order. Failures give every principle 0 with an explanation.
func (s *Scorer) Score(ctx context.Context, in ScoreInput) domain.PrincipleScoring {
	demo := s.isDemo(in.Credentials)
	ctx, span := startSpan(ctx, "analyzer.score", in.Model, demo,
		attribute.String("message.id", in.Message.ID),
		attribute.Int("principles", s.principles.Len()),
	)
	defer span.End()

	var (
		result   domain.PrincipleScoring
		strategy Strategy
	)
	switch {
	case demo:
		result, strategy = s.demo(in), StrategyDemo
	default:
		raw, err := s.chat(ctx, gateway.PurposeScore, in.Credentials, in.Model,
			scoringSystemPrompt(s.principles),
			analysisUserPrompt(in.Context, in.Message, in.AdditionalContext))
		if err != nil {
			recordSpanError(span, err)
			s.logger.Warn("scoring call failed",
				slog.String("message_id", in.Message.ID),
				slog.String("error", err.Error()),
			)
			reason := "Scoring could not be completed: " + domain.AsAPIError(err).UserMessage()
			result, strategy = s.uniform(in, reason, domain.FailureKindOf(err)), StrategyFallback
			break
		}

		p := parseScoring(raw)
		if !p.ok {
			s.logger.Debug("scoring output unparseable",
				slog.String("message_id", in.Message.ID),
				slog.Int("raw_len", len(raw)),
			)
			result, strategy = s.uniform(in, "Scoring response could not be parsed; defaulting to neutral.", domain.FailureParse), StrategyFallback
			break
		}
		result, strategy = s.assemble(in, p.value), p.strategy
	}

	span.SetAttributes(attribute.String("parse.strategy", string(strategy)))
	metrics.ObserveAnalysis("score", string(result.Status))
	metrics.ObserveParseStrategy("score", string(strategy))
	return result
}

// parseScoring accepts {"scores": [...]} or a bare array of score entries.
func parseScoring(raw string) parsed[rawScoring] {
	if p := parseJSON[rawScoring](raw, "scores"); p.ok {
		return p
	}
	if scores, ok := parseArray[rawScore](raw); ok && len(scores) > 0 {
		return parsed[rawScoring]{value: rawScoring{Scores: scores}, strategy: StrategyRepaired, ok: true}
	}
	return parsed[rawScoring]{}
}

// assemble maps parsed scores onto the registry. The first entry for a
// principle wins; missing or non-numeric entries become 0.
func (s *Scorer) assemble(in ScoreInput, raw rawScoring) domain.PrincipleScoring {
	got := make(map[string]rawScore, len(raw.Scores))
	for _, rs := range raw.Scores {
		id, ok := s.principles.Resolve(string(rs.PrincipleID))
		if !ok || !rs.Score.Valid {
			continue
		}
		if _, dup := got[id]; !dup {
			got[id] = rs
		}
	}

	now := s.now()
	result := domain.PrincipleScoring{ScoredAt: now, Status: domain.StatusOK}
	for _, p := range s.principles.All() {
		score := domain.PrincipleScore{
			ID:          s.newID(),
			MessageID:   in.Message.ID,
			PrincipleID: p.ID,
			Timestamp:   now,
		}
		if rs, ok := got[p.ID]; ok {
			score.Score = domain.ClampScore(rs.Score.Value)
			score.Reasoning = strings.TrimSpace(string(rs.Reasoning))
		} else {
			score.Reasoning = "No score was returned for this principle; defaulting to neutral."
			result.Status = domain.StatusDegraded
			result.FailureKind = domain.FailureParse
		}
		result.Scores = append(result.Scores, score)
	}
	return result
}

func (s *Scorer) uniform(in ScoreInput, reason string, kind domain.FailureKind) domain.PrincipleScoring {
	now := s.now()
	result := domain.PrincipleScoring{ScoredAt: now, Status: domain.StatusDegraded, FailureKind: kind}
	for _, p := range s.principles.All() {
		result.Scores = append(result.Scores, domain.PrincipleScore{
			ID:          s.newID(),
			MessageID:   in.Message.ID,
			PrincipleID: p.ID,
			Score:       0,
			Reasoning:   reason,
			Timestamp:   now,
		})
	}
	return result
}

func (s *Scorer) demo(in ScoreInput) domain.PrincipleScoring {
	raw := rawScoring{}
	for _, p := range s.principles.All() {
		raw.Scores = append(raw.Scores, rawScore{
			PrincipleID: flexString(p.ID),
			Score:       flexInt{Value: demoScore(p.ID, in.Message.Content), Valid: true},
			Reasoning:   flexString("Demo mode score for " + p.Name + "."),
		})
	}
	return s.assemble(in, raw)
}

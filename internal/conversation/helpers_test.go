package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/registry"
)

type stubFlagger struct {
	mu     sync.Mutex
	inputs []analyzer.FlagInput
	fn     func(ctx context.Context, in analyzer.FlagInput) domain.FlaggingAnalysis
}

func (s *stubFlagger) Flag(ctx context.Context, in analyzer.FlagInput) domain.FlaggingAnalysis {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, in)
	}
	return domain.FlaggingAnalysis{Status: domain.StatusOK, Reasoning: "fine"}
}

func (s *stubFlagger) calls() []analyzer.FlagInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analyzer.FlagInput(nil), s.inputs...)
}

type stubScorer struct {
	mu     sync.Mutex
	inputs []analyzer.ScoreInput
	fn     func(ctx context.Context, in analyzer.ScoreInput) domain.PrincipleScoring
}

func (s *stubScorer) Score(ctx context.Context, in analyzer.ScoreInput) domain.PrincipleScoring {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, in)
	}
	return domain.PrincipleScoring{Status: domain.StatusOK, Scores: []domain.PrincipleScore{
		{PrincipleID: "honesty", Score: 1, Reasoning: "ok"},
	}}
}

func (s *stubScorer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func testPrinciples(t *testing.T) *registry.Principles {
	t.Helper()
	p, err := registry.NewPrinciples([]registry.Principle{
		{ID: "honesty", Name: "Honesty"},
		{ID: "helpfulness", Name: "Helpfulness"},
	})
	if err != nil {
		t.Fatalf("NewPrinciples() error = %v", err)
	}
	return p
}

// steppingClock advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newQuietStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithAnalysisEnabled(false),
		WithClock(steppingClock()),
		WithIDGenerator(sequentialIDs("m")),
	}, opts...)
	return New(testPrinciples(t), opts...)
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func flagging(flags ...domain.Flag) domain.FlaggingAnalysis {
	return domain.FlaggingAnalysis{
		ShouldFlag:        len(flags) > 0,
		Reasoning:         "test",
		Flags:             flags,
		SeverityBreakdown: domain.SeverityBreakdown{},
		Status:            domain.StatusOK,
	}
}

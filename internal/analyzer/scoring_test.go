package analyzer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/gateway/gatewaytest"
	"github.com/tjfontaine/convolens/internal/registry"
)

func newTestScorer(t *testing.T, gw gateway.Gateway) *Scorer {
	t.Helper()
	principles, err := registry.NewPrinciples([]registry.Principle{
		{ID: "honesty", Name: "Honesty", Rubric: "-5 lies, +5 fully transparent"},
		{ID: "harmlessness", Name: "Harmlessness"},
		{ID: "helpfulness", Name: "Helpfulness"},
	})
	if err != nil {
		t.Fatalf("NewPrinciples() error = %v", err)
	}
	return NewScorer(gw, principles,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	)
}

type scoreView struct {
	PrincipleID string
	Score       int
}

func scoreViews(p domain.PrincipleScoring) []scoreView {
	out := make([]scoreView, len(p.Scores))
	for i, s := range p.Scores {
		out[i] = scoreView{s.PrincipleID, s.Score}
	}
	return out
}

func TestScoreClampsAndOrders(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: `{"scores": [
		{"principleId": "helpfulness", "score": "2", "reasoning": "useful"},
		{"principleId": "Honesty", "score": 7, "reasoning": "very honest"},
		{"principleId": "harmlessness", "score": -9, "reasoning": "harmful"},
		{"principleId": "helpfulness", "score": 4, "reasoning": "duplicate ignored"},
		{"principleId": "unknown", "score": 1}
	]}`}
	s := newTestScorer(t, gw)

	got := s.Score(context.Background(), userInput("hello"))

	want := []scoreView{{"honesty", 5}, {"harmlessness", -5}, {"helpfulness", 2}}
	if diff := cmp.Diff(want, scoreViews(got)); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}
	if got.Status != domain.StatusOK {
		t.Errorf("Status = %s, want ok", got.Status)
	}
	if got.Scores[2].Reasoning != "useful" {
		t.Errorf("first entry per principle should win, got %q", got.Scores[2].Reasoning)
	}
	for _, sc := range got.Scores {
		if sc.MessageID != "m1" || sc.ID == "" || !sc.Timestamp.Equal(fixedNow) {
			t.Errorf("score metadata = %+v", sc)
		}
	}
	if !strings.Contains(gw.Requests()[0].Messages[0].Content, "-5 lies, +5 fully transparent") {
		t.Error("system prompt should include principle rubrics")
	}
}

func TestScoreMissingPrincipleDefaultsToZero(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: `{"scores": [{"principleId": "honesty", "score": 3, "reasoning": "fine"},
		{"principleId": "harmlessness", "score": "n/a"}]}`}
	s := newTestScorer(t, gw)

	got := s.Score(context.Background(), userInput("hello"))

	want := []scoreView{{"honesty", 3}, {"harmlessness", 0}, {"helpfulness", 0}}
	if diff := cmp.Diff(want, scoreViews(got)); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}
	if got.Status != domain.StatusDegraded || got.FailureKind != domain.FailureParse {
		t.Errorf("status = %s/%s, want degraded/parse", got.Status, got.FailureKind)
	}
	if got.Scores[2].Reasoning == "" {
		t.Error("missing principle needs an explanatory reasoning")
	}
}

func TestScoreAcceptsBareArray(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"bare", `[{"principleId": "honesty", "score": 3, "reasoning": "clear"},
			{"principleId": "harmlessness", "score": -1, "reasoning": "edgy"},
			{"principleId": "helpfulness", "score": 2, "reasoning": "useful"}]`},
		{"fenced", "```json\n[{\"principleId\": \"honesty\", \"score\": 3},\n" +
			"{\"principleId\": \"harmlessness\", \"score\": -1},\n" +
			"{\"principleId\": \"helpfulness\", \"score\": 2},]\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestScorer(t, &gatewaytest.Fake{Reply: tt.reply}).Score(context.Background(), userInput("hello"))

			want := []scoreView{{"honesty", 3}, {"harmlessness", -1}, {"helpfulness", 2}}
			if diff := cmp.Diff(want, scoreViews(got)); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
			if got.Status != domain.StatusOK {
				t.Errorf("status = %s/%s, want ok", got.Status, got.FailureKind)
			}
		})
	}
}

func TestScoreFailuresCoverEveryPrinciple(t *testing.T) {
	tests := []struct {
		name string
		gw   *gatewaytest.Fake
		kind domain.FailureKind
	}{
		{"unparseable", &gatewaytest.Fake{Reply: "I'd rate this highly."}, domain.FailureParse},
		{"null reply", &gatewaytest.Fake{Reply: "null"}, domain.FailureParse},
		{"empty array", &gatewaytest.Fake{Reply: "[]"}, domain.FailureParse},
		{"string reply", &gatewaytest.Fake{Reply: `"text"`}, domain.FailureParse},
		{"auth", &gatewaytest.Fake{Err: domain.ErrAuthentication("bad key")}, domain.FailureAuthentication},
		{"rate limit", &gatewaytest.Fake{Err: domain.ErrRateLimit("slow")}, domain.FailureRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestScorer(t, tt.gw).Score(context.Background(), userInput("hello"))

			want := []scoreView{{"honesty", 0}, {"harmlessness", 0}, {"helpfulness", 0}}
			if diff := cmp.Diff(want, scoreViews(got)); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
			if got.Status != domain.StatusDegraded || got.FailureKind != tt.kind {
				t.Errorf("status = %s/%s, want degraded/%s", got.Status, got.FailureKind, tt.kind)
			}
			for _, sc := range got.Scores {
				if sc.Reasoning == "" {
					t.Errorf("score %s has no reasoning", sc.PrincipleID)
				}
			}
		})
	}
}

func TestScoreDemoModeIsDeterministic(t *testing.T) {
	gw := &gatewaytest.Fake{}
	s := newTestScorer(t, gw)

	in := userInput("Thanks for the help")
	in.Credentials = demoCreds
	first := s.Score(context.Background(), in)
	second := s.Score(context.Background(), in)

	if gw.Calls("") != 0 {
		t.Fatalf("demo mode issued %d gateway calls", gw.Calls(""))
	}
	if diff := cmp.Diff(scoreViews(first), scoreViews(second)); diff != "" {
		t.Errorf("demo scores differ between runs:\n%s", diff)
	}
	if len(first.Scores) != 3 || first.Status != domain.StatusOK {
		t.Errorf("demo scoring = %+v", first)
	}
	for _, sc := range first.Scores {
		if sc.Score < domain.MinScore || sc.Score > domain.MaxScore {
			t.Errorf("demo score %d out of range", sc.Score)
		}
	}
}

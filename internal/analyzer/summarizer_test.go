package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/gateway/gatewaytest"
	"github.com/tjfontaine/convolens/internal/tokens"
)

func conversation(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs[i] = domain.Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      role,
			Content:   fmt.Sprintf("message number %d", i),
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestSummarizeOmitsEmptySections(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: "  - talked about weather  "}
	s := NewSummarizer(gw, tokens.NewEstimator())

	got := s.Summarize(context.Background(), SummaryInput{
		Messages:    conversation(2),
		Credentials: liveCreds,
		Format:      "a bulleted list",
	})

	if got.Text != "- talked about weather" || got.Status != domain.StatusOK {
		t.Errorf("Summarize() = %+v", got)
	}
	req := gw.Requests()[0]
	if req.Purpose != gateway.PurposeSummary || req.JSONOutput {
		t.Errorf("request = %+v", req)
	}
	prompt := req.Messages[1].Content
	if strings.Contains(prompt, "Flagged content") || strings.Contains(prompt, "Additional context") {
		t.Errorf("empty sections should be omitted:\n%s", prompt)
	}
	if !strings.Contains(prompt, "USER: message number 0") || !strings.Contains(prompt, "ASSISTANT: message number 1") {
		t.Errorf("prompt missing history:\n%s", prompt)
	}
	if !strings.Contains(req.Messages[0].Content, "a bulleted list") {
		t.Errorf("system prompt should carry the format: %s", req.Messages[0].Content)
	}
}

func TestSummarizeIncludesFlagsAndContext(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: "summary"}
	s := NewSummarizer(gw, nil)

	s.Summarize(context.Background(), SummaryInput{
		Messages: conversation(1),
		Flags: []domain.Flag{{
			Category: "emotional-distress", Severity: domain.SeverityMedium,
			Reason: "user is struggling", Excerpt: "overwhelmed",
		}},
		AdditionalContext: "  pilot study  ",
		Credentials:       liveCreds,
	})

	prompt := gw.Requests()[0].Messages[1].Content
	for _, want := range []string{
		"Flagged content:",
		"- emotional-distress (medium): user is struggling",
		`Excerpt: "overwhelmed"`,
		"Additional context:\npilot study",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSummarizeTrimsOldestToBudget(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: "summary"}
	// Each rendered line is well over 40 chars, so roughly 11+ tokens.
	s := NewSummarizer(gw, tokens.NewEstimator(), WithTokenBudget(30))

	s.Summarize(context.Background(), SummaryInput{Messages: conversation(6), Credentials: liveCreds})

	prompt := gw.Requests()[0].Messages[1].Content
	if !strings.Contains(prompt, "message number 5") {
		t.Errorf("newest message must always be kept:\n%s", prompt)
	}
	if strings.Contains(prompt, "message number 0") {
		t.Errorf("oldest message should be trimmed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "earlier messages omitted]") {
		t.Errorf("omission marker missing:\n%s", prompt)
	}
}

func TestSummarizeFailureAndEmpty(t *testing.T) {
	gw := &gatewaytest.Fake{Err: domain.ErrRateLimit("slow")}
	s := NewSummarizer(gw, nil)

	got := s.Summarize(context.Background(), SummaryInput{Messages: conversation(2), Credentials: liveCreds})
	if got.Status != domain.StatusDegraded || got.FailureKind != domain.FailureRateLimit {
		t.Errorf("status = %s/%s", got.Status, got.FailureKind)
	}
	if !strings.HasPrefix(got.Text, "Summary could not be generated") {
		t.Errorf("Text = %q", got.Text)
	}

	before := gw.Calls("")
	got = s.Summarize(context.Background(), SummaryInput{Credentials: liveCreds})
	if got.Text != "No messages to summarize." || gw.Calls("") != before {
		t.Errorf("empty conversation = %+v, calls %d", got, gw.Calls("")-before)
	}
}

func TestSummarizeDemoMode(t *testing.T) {
	gw := &gatewaytest.Fake{}
	s := NewSummarizer(gw, nil)

	got := s.Summarize(context.Background(), SummaryInput{
		Messages:    conversation(3),
		Flags:       []domain.Flag{{Category: "manipulation"}, {Category: "manipulation"}},
		Credentials: demoCreds,
	})

	if gw.Calls("") != 0 {
		t.Fatalf("demo mode issued %d gateway calls", gw.Calls(""))
	}
	for _, want := range []string{"3 messages (2 user, 1 assistant)", "2 flags raised: manipulation."} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("demo summary missing %q:\n%s", want, got.Text)
		}
	}
}

package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/gateway/gatewaytest"
)

func TestSendChat(t *testing.T) {
	gw := &gatewaytest.Fake{Reply: "Hello! How can I help?"}
	f := &stubFlagger{}
	creds := domain.Credentials{APIKey: "sk-live", BaseURL: "http://localhost:1234/v1"}
	s := New(testPrinciples(t),
		WithGateway(gw),
		WithFlagger(f),
		WithAnalysisOptions(AnalysisOptions{Credentials: creds, Model: "gpt-4o"}),
	)
	s.AppendMessage(domain.RoleUser, "earlier")

	user, reply, err := s.SendChat(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("SendChat() error = %v", err)
	}
	s.Wait()

	if user.Role != domain.RoleUser || reply.Role != domain.RoleAssistant || reply.Content != "Hello! How can I help?" {
		t.Errorf("SendChat() = %+v, %+v", user, reply)
	}
	req := gw.Requests()[0]
	if req.Purpose != gateway.PurposeChat || req.Credentials != creds || req.Model != "gpt-4o" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Content != "earlier" || req.Messages[1].Content != "hi there" {
		t.Errorf("chat should send the whole conversation, got %+v", req.Messages)
	}
	if len(f.calls()) != 3 {
		t.Errorf("flagger calls = %d, want 3", len(f.calls()))
	}
}

func TestSendChatFailureAppendsExplanation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", domain.ErrAuthentication("bad key"), "Invalid API key"},
		{"rate", domain.ErrRateLimit("slow"), "Rate limit exceeded"},
		{"server", domain.ErrServer("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFlagger{}
			s := New(testPrinciples(t), WithGateway(&gatewaytest.Fake{Err: tt.err}), WithFlagger(f))

			_, reply, err := s.SendChat(context.Background(), "hi")
			s.Wait()

			if !errors.Is(err, tt.err) {
				t.Errorf("SendChat() error = %v, want %v", err, tt.err)
			}
			if reply.Role != domain.RoleAssistant || !strings.Contains(reply.Content, tt.want) {
				t.Errorf("synthetic reply = %+v", reply)
			}
			if s.Len() != 2 {
				t.Errorf("Len() = %d, want 2", s.Len())
			}
			if len(f.calls()) != 1 {
				t.Errorf("synthetic error message should not be analyzed: %d calls", len(f.calls()))
			}
		})
	}
}

func TestSendChatWithoutGateway(t *testing.T) {
	s := newQuietStore(t)
	if _, _, err := s.SendChat(context.Background(), "hi"); !errors.Is(err, ErrNoGateway) {
		t.Errorf("SendChat() error = %v", err)
	}
	if s.Len() != 0 {
		t.Error("nothing should be appended without a gateway")
	}
}

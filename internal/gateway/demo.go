package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/convolens/internal/domain"
)

var demoModels = []domain.Model{
	{ID: "demo-gpt-4o-mini", OwnedBy: "convolens"},
	{ID: "demo-gpt-4o", OwnedBy: "convolens"},
	{ID: "demo-llama-3.1-8b", OwnedBy: "convolens"},
}

// DemoModels is the model listing served in demo mode.
func DemoModels() []domain.Model {
	return append([]domain.Model(nil), demoModels...)
}

// DemoReply is the deterministic chat reply served in demo mode.
func DemoReply(messages []domain.Turn) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == string(domain.RoleUser) {
			last = messages[i].Content
			break
		}
	}
	if last == "" {
		return "This is a demo response. Provide a real API key to chat with a model."
	}
	return fmt.Sprintf("This is a demo response to: %q. Provide a real API key to chat with a model.", domain.Truncate(strings.TrimSpace(last), 80))
}

// Demo wraps a Gateway so the sentinel credential never reaches it.
type Demo struct {
	next     Gateway
	sentinel string
}

var _ Gateway = (*Demo)(nil)

// NewDemo creates the demo short-circuit around next.
func NewDemo(next Gateway, sentinel string) *Demo {
	if sentinel == "" {
		sentinel = DefaultDemoKey
	}
	return &Demo{next: next, sentinel: sentinel}
}

// Sentinel returns the demo credential.
func (d *Demo) Sentinel() string {
	return d.sentinel
}

func (d *Demo) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if IsDemo(req.Credentials, d.sentinel) {
		return DemoReply(req.Messages), nil
	}
	return d.next.Chat(ctx, req)
}

func (d *Demo) ListModels(ctx context.Context, creds domain.Credentials) ([]domain.Model, error) {
	if IsDemo(creds, d.sentinel) {
		return DemoModels(), nil
	}
	return d.next.ListModels(ctx, creds)
}

// Package gatewaytest provides a scripted Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
)

// Fake answers chat calls through Respond and counts calls per purpose.
type Fake struct {
	// Respond produces the reply for a request. When nil, Reply and Err are
	// returned for every call.
	Respond func(req gateway.ChatRequest) (string, error)
	Reply   string
	Err     error

	Models    []domain.Model
	ModelsErr error

	mu       sync.Mutex
	requests []gateway.ChatRequest
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) Chat(ctx context.Context, req gateway.ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Respond != nil {
		return f.Respond(req)
	}
	return f.Reply, f.Err
}

func (f *Fake) ListModels(ctx context.Context, creds domain.Credentials) ([]domain.Model, error) {
	f.mu.Lock()
	f.requests = append(f.requests, gateway.ChatRequest{Purpose: gateway.PurposeModels, Credentials: creds})
	f.mu.Unlock()
	return f.Models, f.ModelsErr
}

// Requests returns a copy of every request seen so far.
func (f *Fake) Requests() []gateway.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.ChatRequest(nil), f.requests...)
}

// Calls counts requests with the given purpose. An empty purpose counts all.
func (f *Fake) Calls(purpose string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if purpose == "" {
		return len(f.requests)
	}
	n := 0
	for _, r := range f.requests {
		if r.Purpose == purpose {
			n++
		}
	}
	return n
}

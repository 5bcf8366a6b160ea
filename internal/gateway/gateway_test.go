package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/storage"
	"github.com/tjfontaine/convolens/internal/storage/memory"
)

func newProviderServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-live" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Method == http.MethodPost {
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			seen = append(seen, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestOpenAIChat(t *testing.T) {
	srv, seen := newProviderServer(t, http.StatusOK,
		`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"}}]}`)

	g := NewOpenAI(WithDefaultModel("gpt-test"))
	out, err := g.Chat(context.Background(), ChatRequest{
		Purpose:     PurposeFlag,
		Messages:    []domain.Turn{{Role: "user", Content: "hi"}},
		Credentials: domain.Credentials{APIKey: "sk-live", BaseURL: srv.URL},
		JSONOutput:  true,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out != "hello there" {
		t.Errorf("Chat() = %q", out)
	}
	if len(*seen) != 1 {
		t.Fatalf("provider saw %d requests", len(*seen))
	}
	req := (*seen)[0]
	if req["model"] != "gpt-test" {
		t.Errorf("model = %v, want default model", req["model"])
	}
	if rf, ok := req["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v", req["response_format"])
	}
}

func TestOpenAIChatErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
	}{
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, domain.ErrorTypeAuthentication},
		{"rate", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrorTypeRateLimit},
		{"no choices", http.StatusOK, `{"id":"c1","choices":[]}`, domain.ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newProviderServer(t, tt.status, tt.body)
			g := NewOpenAI()
			_, err := g.Chat(context.Background(), ChatRequest{
				Messages:    []domain.Turn{{Role: "user", Content: "hi"}},
				Credentials: domain.Credentials{APIKey: "sk-live", BaseURL: srv.URL},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := domain.AsAPIError(err).Type; got != tt.wantType {
				t.Errorf("error type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	g := NewOpenAI()
	_, err := g.Chat(context.Background(), ChatRequest{})
	if !domain.IsAuthentication(err) {
		t.Errorf("Chat() error = %v, want authentication", err)
	}
	_, err = g.ListModels(context.Background(), domain.Credentials{APIKey: "  "})
	if !domain.IsAuthentication(err) {
		t.Errorf("ListModels() error = %v, want authentication", err)
	}
}

func TestOpenAIListModels(t *testing.T) {
	srv, _ := newProviderServer(t, http.StatusOK,
		`{"object":"list","data":[{"id":"m1","object":"model","owned_by":"org"},{"id":"m2","object":"model"}]}`)

	models, err := NewOpenAI().ListModels(context.Background(), domain.Credentials{APIKey: "sk-live", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0].ID != "m1" || models[0].OwnedBy != "org" {
		t.Errorf("ListModels() = %+v", models)
	}
}

func TestIsDemo(t *testing.T) {
	tests := []struct {
		key      string
		sentinel string
		want     bool
	}{
		{"test", "", true},
		{" test ", "", true},
		{"Test", "", false},
		{"sk-live", "", false},
		{"demo", "demo", true},
		{"test", "demo", false},
	}
	for _, tt := range tests {
		if got := IsDemo(domain.Credentials{APIKey: tt.key}, tt.sentinel); got != tt.want {
			t.Errorf("IsDemo(%q, %q) = %v, want %v", tt.key, tt.sentinel, got, tt.want)
		}
	}
}

type countingGateway struct {
	chats  int
	models int
	err    error
}

func (c *countingGateway) Chat(context.Context, ChatRequest) (string, error) {
	c.chats++
	return "real", c.err
}

func (c *countingGateway) ListModels(context.Context, domain.Credentials) ([]domain.Model, error) {
	c.models++
	return []domain.Model{{ID: "real"}}, c.err
}

func TestDemoShortCircuit(t *testing.T) {
	next := &countingGateway{}
	g := NewDemo(next, "")

	out, err := g.Chat(context.Background(), ChatRequest{
		Messages:    []domain.Turn{{Role: "user", Content: "Hello"}},
		Credentials: domain.Credentials{APIKey: "test"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.Contains(out, "Hello") {
		t.Errorf("demo reply %q does not echo the user message", out)
	}

	models, err := g.ListModels(context.Background(), domain.Credentials{APIKey: "test"})
	if err != nil || len(models) != len(DemoModels()) {
		t.Errorf("ListModels() = %v, %v", models, err)
	}
	if next.chats != 0 || next.models != 0 {
		t.Errorf("demo mode reached provider: chats=%d models=%d", next.chats, next.models)
	}

	if _, err := g.Chat(context.Background(), ChatRequest{Credentials: domain.Credentials{APIKey: "sk"}}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if next.chats != 1 {
		t.Errorf("real credentials should pass through, chats=%d", next.chats)
	}
}

func TestRecordingWritesInteractions(t *testing.T) {
	store := memory.New(10)
	next := &countingGateway{}
	g := NewRecording(next, store, nil)

	if _, err := g.Chat(context.Background(), ChatRequest{Purpose: PurposeScore, Model: "m"}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	next.err = domain.ErrRateLimit("slow down")
	if _, err := g.Chat(context.Background(), ChatRequest{Purpose: PurposeFlag}); err == nil {
		t.Fatal("expected error to propagate")
	}

	got, err := store.ListInteractions(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recorded %d interactions, want 2", len(got))
	}
	// Newest first.
	if got[0].Status != storage.StatusError || got[0].ErrorType != string(domain.ErrorTypeRateLimit) || got[0].Purpose != PurposeFlag {
		t.Errorf("failed interaction = %+v", got[0])
	}
	if got[1].Status != storage.StatusOK || got[1].Purpose != PurposeScore || got[1].ResponseExcerpt != "real" {
		t.Errorf("ok interaction = %+v", got[1])
	}
}

func TestRecordingCancelledContextStillRecords(t *testing.T) {
	store := memory.New(10)
	g := NewRecording(&countingGateway{}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = g.Chat(ctx, ChatRequest{Purpose: PurposeChat})

	got, _ := store.ListInteractions(context.Background(), storage.ListOptions{})
	if len(got) != 1 {
		t.Errorf("recorded %d interactions, want 1", len(got))
	}
}

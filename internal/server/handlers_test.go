package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/gateway/gatewaytest"
	"github.com/tjfontaine/convolens/internal/registry"
	"github.com/tjfontaine/convolens/internal/session"
	"github.com/tjfontaine/convolens/internal/storage/memory"
)

type fixture struct {
	router   *chi.Mux
	fake     *gatewaytest.Fake
	sessions *session.Registry
}

func newFixture(t *testing.T, sessionOpts ...session.Option) *fixture {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := &gatewaytest.Fake{
		Reply:  "hello from the provider",
		Models: []domain.Model{{ID: "gpt-4o", OwnedBy: "openai"}},
	}
	gw := gateway.NewDemo(fake, gateway.DefaultDemoKey)
	set := registry.MustPreset(registry.PresetGeneral)

	flagger := analyzer.NewFlagger(gw, set.Categories, analyzer.WithLogger(quiet))
	scorer := analyzer.NewScorer(gw, set.Principles, analyzer.WithLogger(quiet))
	summarizer := analyzer.NewSummarizer(gw, nil, analyzer.WithLogger(quiet))

	sessions := session.NewRegistry(func() *conversation.Store {
		return conversation.New(set.Principles,
			conversation.WithFlagger(flagger),
			conversation.WithScorer(scorer),
			conversation.WithGateway(gw),
			conversation.WithLogger(quiet),
		)
	}, append([]session.Option{session.WithLogger(quiet)}, sessionOpts...)...)

	h := NewHandlers(HandlerConfig{
		Gateway:        gw,
		Registry:       set,
		Flagger:        flagger,
		Scorer:         scorer,
		Summarizer:     summarizer,
		Sessions:       sessions,
		Interactions:   memory.New(10),
		Defaults:       Defaults{Model: "gpt-4o-mini"},
		Batch:          conversation.BatchOptions{Delay: time.Millisecond, RateLimitBackoff: time.Millisecond},
		RequestTimeout: 5 * time.Second,
		Logger:         quiet,
	})
	r := chi.NewRouter()
	h.Mount(r)
	return &fixture{router: r, fake: fake, sessions: sessions}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func turns(pairs ...string) []map[string]string {
	out := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]string{"role": pairs[i], "content": pairs[i+1]})
	}
	return out
}

func TestChatEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": turns("user", "hi"),
		"apiKey":   "sk-live",
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[chatResponse](t, rec).Message; got != "hello from the provider" {
		t.Errorf("message = %q", got)
	}

	reqs := f.fake.Requests()
	if len(reqs) != 1 || reqs[0].Model != "gpt-4o-mini" || reqs[0].Purpose != gateway.PurposeChat {
		t.Errorf("provider request = %+v, want default model and chat purpose", reqs)
	}

	rec = f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": turns("user", "hi"),
		"apiKey":   "test",
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[chatResponse](t, rec).Message; !strings.Contains(got, "demo response") {
		t.Errorf("demo message = %q", got)
	}
	if n := len(f.fake.Requests()); n != 1 {
		t.Errorf("demo mode reached the provider: %d calls", n)
	}
}

func TestChatEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid key",
			err:        domain.ErrAuthentication("bad key"),
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid API key",
		},
		{
			name:       "rate limited",
			err:        domain.ErrRateLimit("slow down"),
			wantStatus: http.StatusTooManyRequests,
			wantError:  "Rate limit exceeded",
		},
		{
			name:       "provider failure",
			err:        domain.ErrServer("upstream exploded"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "upstream exploded",
		},
		{
			name:       "no messages",
			body:       map[string]any{"apiKey": "sk-live"},
			wantStatus: http.StatusBadRequest,
			wantError:  "messages",
		},
		{
			name:       "malformed body",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fake.Err = tt.err
			body := tt.body
			if body == nil {
				body = map[string]any{"messages": turns("user", "hi"), "apiKey": "sk-live"}
			}

			rec := f.do(t, http.MethodPost, "/api/chat", body)
			expectStatus(t, rec, tt.wantStatus)
			if got := decode[errorResponse](t, rec).Error; !strings.Contains(got, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", got, tt.wantError)
			}
		})
	}
}

func TestModelsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/models", map[string]any{"apiKey": "sk-live"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[modelsResponse](t, rec).Models; len(got) != 1 || got[0].ID != "gpt-4o" {
		t.Errorf("models = %+v", got)
	}

	rec = f.do(t, http.MethodPost, "/api/models", map[string]any{"apiKey": "test"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[modelsResponse](t, rec).Models; len(got) != len(gateway.DemoModels()) {
		t.Errorf("demo models = %+v", got)
	}
}

func TestFlagEndpointDemo(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/flag", map[string]any{
		"messages": turns("assistant", "How are you?", "user", "I feel overwhelmed and alone"),
		"apiKey":   "test",
	})
	expectStatus(t, rec, http.StatusOK)

	got := decode[domain.FlaggingAnalysis](t, rec)
	if !got.ShouldFlag {
		t.Fatalf("shouldFlag = false, analysis = %+v", got)
	}
	if sev := got.SeverityBreakdown["emotional-distress"]; sev != domain.SeverityHigh {
		t.Errorf("emotional-distress = %q, want high", sev)
	}
	if len(got.SeverityBreakdown) != registry.MustPreset(registry.PresetGeneral).Categories.Len() {
		t.Errorf("breakdown has %d categories", len(got.SeverityBreakdown))
	}
	if len(f.fake.Requests()) != 0 {
		t.Error("demo flagging reached the provider")
	}
}

func TestFlagEndpointRejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/flag", map[string]any{
		"messages": turns("narrator", "once upon a time"),
		"apiKey":   "test",
	})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestPrinciplesEndpoint(t *testing.T) {
	f := newFixture(t)
	f.fake.Reply = `{"scores":[{"principleId":"honesty","score":"9","reasoning":"candid"}]}`

	rec := f.do(t, http.MethodPost, "/api/principles", map[string]any{
		"messages": turns("assistant", "The answer is 42."),
		"apiKey":   "sk-live",
	})
	expectStatus(t, rec, http.StatusOK)

	got := decode[principlesResponse](t, rec)
	if got.Success {
		t.Error("success should be false when principles are missing")
	}
	if len(got.Scores) != registry.MustPreset(registry.PresetGeneral).Principles.Len() {
		t.Fatalf("scores = %+v, want one per principle", got.Scores)
	}
	if got.Scores[0].PrincipleID != "honesty" || got.Scores[0].Score != 5 {
		t.Errorf("honesty = %+v, want clamped 5", got.Scores[0])
	}
	for _, s := range got.Scores[1:] {
		if s.Score != 0 {
			t.Errorf("missing principle %s scored %d, want 0", s.PrincipleID, s.Score)
		}
	}

	rec = f.do(t, http.MethodPost, "/api/principles", map[string]any{
		"messages": turns("assistant", "The answer is 42."),
		"apiKey":   "test",
	})
	expectStatus(t, rec, http.StatusOK)
	if !decode[principlesResponse](t, rec).Success {
		t.Error("demo scoring should succeed")
	}
}

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/summary", map[string]any{
		"conversationHistory": turns("user", "hi", "assistant", "hello"),
		"flaggedContent":      []domain.Flag{},
		"format":              "bullets",
		"apiKey":              "test",
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[summaryResponse](t, rec).Summary; !strings.Contains(got, "2 messages") {
		t.Errorf("summary = %q", got)
	}
}

func TestRegistryAndHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/registry", nil)
	expectStatus(t, rec, http.StatusOK)
	reg := decode[struct {
		Categories []registry.Category  `json:"categories"`
		Principles []registry.Principle `json:"principles"`
	}](t, rec)
	if len(reg.Categories) == 0 || len(reg.Principles) == 0 {
		t.Errorf("registry = %+v", reg)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, "/api/interactions?limit=5", nil), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, "/api/interactions?limit=-1", nil), http.StatusBadRequest)
}

package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/registry"
	"github.com/tjfontaine/convolens/internal/session"
	"github.com/tjfontaine/convolens/internal/storage"
)

// Defaults fill in provider settings a request leaves out.
type Defaults struct {
	APIKey  string
	BaseURL string
	Model   string
}

// HandlerConfig wires the API to the pipeline.
type HandlerConfig struct {
	Gateway    gateway.Gateway
	Registry   *registry.Set
	Flagger    *analyzer.Flagger
	Scorer     *analyzer.Scorer
	Summarizer *analyzer.Summarizer
	Sessions   *session.Registry
	// Interactions is optional; without it /api/interactions answers 404.
	Interactions storage.InteractionStore

	Defaults       Defaults
	ContextWindow  int
	Batch          conversation.BatchOptions
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Handlers serves the JSON API.
type Handlers struct {
	cfg HandlerConfig
}

func NewHandlers(cfg HandlerConfig) *Handlers {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = conversation.DefaultContextWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handlers{cfg: cfg}
}

// Mount registers every route on r. Batch analysis is exempt from the
// request timeout since its pacing alone can outlast it.
func (h *Handlers) Mount(r chi.Router) {
	timeout := TimeoutMiddleware(h.cfg.RequestTimeout)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/chat", h.handleChat)
			r.Post("/models", h.handleModels)
			r.Post("/flag", h.handleFlag)
			r.Post("/principles", h.handlePrinciples)
			r.Post("/summary", h.handleSummary)
			r.Get("/registry", h.handleRegistry)
			r.Get("/interactions", h.handleInteractions)
			r.Post("/sessions", h.handleCreateSession)
			r.Get("/sessions", h.handleListSessions)
		})

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/analyze", h.withSession(h.handleSessionAnalyze))

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/", h.withSession(h.handleGetSession))
				r.Delete("/", h.handleDeleteSession)
				r.Put("/settings", h.withSession(h.handleSessionSettings))
				r.Post("/chat", h.withSession(h.handleSessionChat))
				r.Post("/messages", h.withSession(h.handleAppendMessage))
				r.Get("/messages", h.withSession(h.handleListMessages))
				r.Post("/transcript", h.withSession(h.handleTranscript))
				r.Put("/cutoff", h.withSession(h.handleCutoff))
				r.Get("/flags", h.withSession(h.handleFlags))
				r.Get("/series", h.withSession(h.handleSeries))
				r.Post("/summary", h.withSession(h.handleSessionSummary))
				r.Get("/export.csv", h.withSession(h.handleExportCSV))
				r.Get("/export.md", h.withSession(h.handleExportTable))
				r.Get("/export.json", h.withSession(h.handleExportJSON))
			})
		})
	})
}

// providerFields are the credential and model fields shared by every
// provider-backed request.
type providerFields struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (p providerFields) resolve(d Defaults) (domain.Credentials, string) {
	creds := domain.Credentials{
		APIKey:  strings.TrimSpace(p.APIKey),
		BaseURL: strings.TrimSpace(p.BaseURL),
	}
	if creds.APIKey == "" {
		creds.APIKey = d.APIKey
	}
	if creds.BaseURL == "" {
		creds.BaseURL = d.BaseURL
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = d.Model
	}
	return creds, model
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.cfg.Sessions.Len(),
	})
}

func (h *Handlers) handleRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.cfg.Registry.Categories.All(),
		"principles": h.cfg.Registry.Principles.All(),
	})
}

// Package app assembles the analysis pipeline from configuration. Both the
// HTTP server and the batch CLI build on it.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/config"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/registry"
	"github.com/tjfontaine/convolens/internal/safehttp"
	"github.com/tjfontaine/convolens/internal/session"
	"github.com/tjfontaine/convolens/internal/storage"
	"github.com/tjfontaine/convolens/internal/storage/memory"
	"github.com/tjfontaine/convolens/internal/storage/sqlite"
	"github.com/tjfontaine/convolens/internal/tokens"
)

// App holds the long-lived components shared by every conversation.
type App struct {
	Config       *config.Config
	Registry     *registry.Set
	Interactions storage.InteractionStore
	Gateway      gateway.Gateway
	Flagger      *analyzer.Flagger
	Scorer       *analyzer.Scorer
	Summarizer   *analyzer.Summarizer

	logger *slog.Logger
}

type options struct {
	provider   gateway.Gateway
	httpClient *http.Client
}

// Option customizes New.
type Option func(*options)

// WithProvider replaces the OpenAI-compatible provider, e.g. with a test fake.
// Demo handling and interaction recording still wrap it.
func WithProvider(gw gateway.Gateway) Option {
	return func(o *options) { o.provider = gw }
}

// WithHTTPClient sets the client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New wires registries, the interaction log, the gateway chain and the
// analyzers. The gateway chain is demo → recording → provider, so demo calls
// never reach the provider or the interaction log.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	set, err := registry.Load(cfg.Registry.Preset, cfg.Registry.File)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	interactions, err := OpenStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		gwOpts := []gateway.Option{
			gateway.WithDefaultBaseURL(cfg.Provider.BaseURL),
			gateway.WithDefaultModel(cfg.Provider.Model),
		}
		switch {
		case o.httpClient != nil:
			gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
		case cfg.Provider.BlockPrivateNetworks:
			gwOpts = append(gwOpts, gateway.WithHTTPClient(safehttp.NewClient(cfg.Provider.Timeout)))
		default:
			gwOpts = append(gwOpts, gateway.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}))
		}
		provider = gateway.NewOpenAI(gwOpts...)
	}
	gw := gateway.NewDemo(gateway.NewRecording(provider, interactions, logger), cfg.Provider.DemoKey)

	aopts := []analyzer.Option{
		analyzer.WithLogger(logger),
		analyzer.WithDemoKey(cfg.Provider.DemoKey),
		analyzer.WithTokenBudget(cfg.Analysis.TokenBudget),
	}

	logger.Info("pipeline ready",
		slog.String("registry_preset", cfg.Registry.Preset),
		slog.Int("categories", set.Categories.Len()),
		slog.Int("principles", set.Principles.Len()),
		slog.String("storage", cfg.Storage.Type),
	)

	return &App{
		Config:       cfg,
		Registry:     set,
		Interactions: interactions,
		Gateway:      gw,
		Flagger:      analyzer.NewFlagger(gw, set.Categories, aopts...),
		Scorer:       analyzer.NewScorer(gw, set.Principles, aopts...),
		Summarizer:   analyzer.NewSummarizer(gw, tokens.NewRegistry(), aopts...),
		logger:       logger,
	}, nil
}

// OpenStorage opens the configured interaction log. Type "none" yields nil.
func OpenStorage(cfg config.StorageConfig) (storage.InteractionStore, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory.MaxEntries), nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// DefaultAnalysisOptions are the provider settings new conversations start
// with.
func (a *App) DefaultAnalysisOptions() conversation.AnalysisOptions {
	return conversation.AnalysisOptions{
		Credentials: domain.Credentials{
			APIKey:  a.Config.Provider.APIKey,
			BaseURL: a.Config.Provider.BaseURL,
		},
		Model:       a.Config.Provider.Model,
	}
}

// NewStore creates a conversation wired to the shared analyzers.
func (a *App) NewStore(extra ...conversation.Option) *conversation.Store {
	an := a.Config.Analysis
	opts := []conversation.Option{
		conversation.WithFlagger(a.Flagger),
		conversation.WithScorer(a.Scorer),
		conversation.WithGateway(a.Gateway),
		conversation.WithAnalysisEnabled(an.Enabled),
		conversation.WithContextWindow(an.ContextWindow),
		conversation.WithAnalysisTimeout(an.Timeout),
		conversation.WithGlobalFlagDedup(an.GlobalFlagDedup),
		conversation.WithLogger(a.logger),
		conversation.WithAnalysisOptions(a.DefaultAnalysisOptions()),
	}
	return conversation.New(a.Registry.Principles, append(opts, extra...)...)
}

// Sessions creates the session registry served over HTTP. Its stores only
// carry the configured API key when provider.share_api_key is set.
func (a *App) Sessions() *session.Registry {
	opts := a.DefaultAnalysisOptions()
	opts.Credentials.APIKey = a.Config.Provider.SharedAPIKey()
	return session.NewRegistry(func() *conversation.Store {
		return a.NewStore(conversation.WithAnalysisOptions(opts))
	},
		session.WithMaxSessions(a.Config.Server.MaxSessions),
		session.WithIdleTTL(a.Config.Server.SessionIdleTTL),
		session.WithLogger(a.logger),
	)
}

// BatchOptions are the pacing settings for AnalyzeAll.
func (a *App) BatchOptions() conversation.BatchOptions {
	return conversation.BatchOptions{
		Delay:            a.Config.Analysis.BatchDelay,
		RateLimitBackoff: a.Config.Analysis.RateLimitBackoff,
	}
}

// Close releases the interaction log.
func (a *App) Close() error {
	if a.Interactions == nil {
		return nil
	}
	return a.Interactions.Close()
}

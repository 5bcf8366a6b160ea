// Package analyzer turns model output into structured, always-displayable
// analysis results: safety flags, principle scores and summaries.
//
// Every analyzer is total. Provider failures and unparseable output produce a
// degraded result instead of an error, so callers never have to handle one.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
)

var tracer = otel.Tracer("github.com/tjfontaine/convolens/internal/analyzer")

const analysisTemperature float32 = 0.2

// Option configures an analyzer.
type Option func(*base)

type base struct {
	gw          gateway.Gateway
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	demoKey     string
	tokenBudget int
}

func newBase(gw gateway.Gateway, opts []Option) base {
	b := base{
		gw:          gw,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		demoKey:     gateway.DefaultDemoKey,
		tokenBudget: defaultTokenBudget,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithLogger sets the analyzer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator used for flag and score ids.
func WithIDGenerator(gen func() string) Option {
	return func(b *base) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// WithDemoKey sets the sentinel credential that enables demo mode.
func WithDemoKey(key string) Option {
	return func(b *base) {
		if key != "" {
			b.demoKey = key
		}
	}
}

// WithTokenBudget bounds the conversation history sent to the summarizer.
func WithTokenBudget(n int) Option {
	return func(b *base) {
		if n > 0 {
			b.tokenBudget = n
		}
	}
}

func (b *base) isDemo(creds domain.Credentials) bool {
	return gateway.IsDemo(creds, b.demoKey)
}

func (b *base) chat(ctx context.Context, purpose string, creds domain.Credentials, model, system, user string) (string, error) {
	temp := analysisTemperature
	return b.gw.Chat(ctx, gateway.ChatRequest{
		Purpose: purpose,
		Messages: []domain.Turn{
			{Role: "system", Content: system},
			{Role: string(domain.RoleUser), Content: user},
		},
		Credentials: creds,
		Model:       model,
		JSONOutput:  purpose != gateway.PurposeSummary,
		Temperature: &temp,
	})
}

func startSpan(ctx context.Context, name, model string, demo bool, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("llm.model", model),
		attribute.Bool("analysis.demo", demo),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

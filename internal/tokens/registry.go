// Package tokens counts prompt tokens so analyzers can keep transcripts inside
// a model's context budget.
package tokens

import (
	"strings"

	"github.com/tjfontaine/convolens/internal/domain"
)

// Counter counts tokens for one family of models.
type Counter interface {
	// CountText counts the tokens in a plain string.
	CountText(model, text string) int
	// CountTurns counts a chat prompt including per-message overhead.
	CountTurns(model string, turns []domain.Turn) int
	SupportsModel(model string) bool
}

// Registry picks the first registered counter that supports a model and
// falls back to an Estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewOpenAICounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

func (r *Registry) CountText(model, text string) int {
	return r.GetCounter(model).CountText(model, text)
}

func (r *Registry) CountTurns(model string, turns []domain.Turn) int {
	return r.GetCounter(model).CountTurns(model, turns)
}

func (r *Registry) SupportsModel(string) bool {
	return true
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountText(_ string, text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}

func (e *Estimator) CountTurns(model string, turns []domain.Turn) int {
	total := 0
	for _, t := range turns {
		total += e.CountText(model, t.Role) + e.CountText(model, t.Content) + 1
	}
	return total
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	model = strings.ToLower(model)
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Package gateway is the request/response façade every analyzer uses to reach
// a chat-completion provider.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openaiapi "github.com/tjfontaine/convolens/internal/api/openai"
	"github.com/tjfontaine/convolens/internal/domain"
)

// Purposes label gateway calls for logging, metrics and the interaction log.
const (
	PurposeChat    = "chat"
	PurposeFlag    = "flag"
	PurposeScore   = "score"
	PurposeSummary = "summary"
	PurposeModels  = "models"
)

// DefaultDemoKey is the sentinel credential that switches on demo mode.
const DefaultDemoKey = "test"

// ChatRequest is one chat completion call.
type ChatRequest struct {
	Purpose     string
	Messages    []domain.Turn
	Credentials domain.Credentials
	Model       string
	// JSONOutput asks providers that support it for a JSON object response.
	JSONOutput  bool
	Temperature *float32
}

// Gateway is the model provider boundary. Errors are *domain.APIError.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ListModels(ctx context.Context, creds domain.Credentials) ([]domain.Model, error)
}

// IsDemo reports whether creds carry the demo sentinel.
func IsDemo(creds domain.Credentials, sentinel string) bool {
	if sentinel == "" {
		sentinel = DefaultDemoKey
	}
	return strings.TrimSpace(creds.APIKey) == sentinel
}

// Option configures the OpenAI gateway.
type Option func(*OpenAI)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *OpenAI) {
		g.httpClient = c
	}
}

// WithDefaultBaseURL sets the endpoint used when a request has no base URL.
func WithDefaultBaseURL(u string) Option {
	return func(g *OpenAI) {
		g.defaultBaseURL = u
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(m string) Option {
	return func(g *OpenAI) {
		g.defaultModel = m
	}
}

// OpenAI is a Gateway backed by an OpenAI-compatible HTTP API. Credentials
// arrive per request, so a client is built for each call.
type OpenAI struct {
	httpClient     *http.Client
	defaultBaseURL string
	defaultModel   string
}

var _ Gateway = (*OpenAI)(nil)

// NewOpenAI creates the gateway.
func NewOpenAI(opts ...Option) *OpenAI {
	g := &OpenAI{
		defaultModel: "gpt-4o-mini",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OpenAI) client(creds domain.Credentials) *openaiapi.Client {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = g.defaultBaseURL
	}
	return openaiapi.NewClient(creds.APIKey,
		openaiapi.WithBaseURL(baseURL),
		openaiapi.WithHTTPClient(g.httpClient),
	)
}

// Chat sends the conversation and returns the first choice's content.
func (g *OpenAI) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(req.Credentials.APIKey) == "" {
		return "", domain.ErrAuthentication("API key is required")
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	apiReq := &openaiapi.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openaiapi.ChatCompletionMessage, len(req.Messages)),
		Temperature: req.Temperature,
	}
	for i, m := range req.Messages {
		apiReq.Messages[i] = openaiapi.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	if req.JSONOutput {
		apiReq.ResponseFormat = &openaiapi.ResponseFormat{Type: "json_object"}
	}

	resp, err := g.client(req.Credentials).CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", req.Purpose, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrServer("provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the provider's model listing.
func (g *OpenAI) ListModels(ctx context.Context, creds domain.Credentials) ([]domain.Model, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, domain.ErrAuthentication("API key is required")
	}

	resp, err := g.client(creds).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]domain.Model, len(resp.Data))
	for i, m := range resp.Data {
		models[i] = domain.Model{ID: m.ID, OwnedBy: m.OwnedBy}
	}
	return models, nil
}

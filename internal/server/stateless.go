package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/storage"
)

type chatRequest struct {
	providerFields
	Messages []domain.Turn `json:"messages"`
}

type chatResponse struct {
	Message string `json:"message"`
}

func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, badRequest("messages must not be empty"))
		return
	}
	creds, model := req.resolve(h.cfg.Defaults)
	AddLogField(r.Context(), "model", model)

	reply, err := h.cfg.Gateway.Chat(r.Context(), gateway.ChatRequest{
		Purpose:     gateway.PurposeChat,
		Messages:    req.Messages,
		Credentials: creds,
		Model:       model,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Message: reply})
}

type modelsResponse struct {
	Models []domain.Model `json:"models"`
}

func (h *Handlers) handleModels(w http.ResponseWriter, r *http.Request) {
	var req providerFields
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	creds, _ := req.resolve(h.cfg.Defaults)

	models, err := h.cfg.Gateway.ListModels(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if models == nil {
		models = []domain.Model{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

type analysisRequest struct {
	providerFields
	Messages          []domain.Turn `json:"messages"`
	AdditionalContext string        `json:"additionalContext,omitempty"`
}

// input turns the request into analyzer input for its last message, judged
// against the same context window a session would use.
func (req analysisRequest) input(h *Handlers) (analyzer.FlagInput, error) {
	msgs := make([]domain.Message, 0, len(req.Messages))
	for i, t := range req.Messages {
		role, ok := domain.ParseRole(t.Role)
		if !ok {
			if strings.EqualFold(t.Role, "system") {
				continue
			}
			return analyzer.FlagInput{}, badRequest("messages[%d]: unknown role %q", i, t.Role)
		}
		msgs = append(msgs, domain.Message{
			ID:      fmt.Sprintf("req_%d", i),
			Role:    role,
			Content: t.Content,
		})
	}
	if len(msgs) == 0 {
		return analyzer.FlagInput{}, badRequest("messages must contain at least one user or assistant message")
	}

	creds, model := req.resolve(h.cfg.Defaults)
	last := len(msgs) - 1
	return analyzer.FlagInput{
		Message:           msgs[last],
		Context:           domain.Turns(conversation.ContextWindow(msgs, last, h.cfg.ContextWindow)),
		AdditionalContext: req.AdditionalContext,
		Credentials:       creds,
		Model:             model,
	}, nil
}

func (h *Handlers) handleFlag(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(h)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := h.cfg.Flagger.Flag(r.Context(), in)
	AddLogField(r.Context(), "analysis_status", string(result.Status))
	writeJSON(w, http.StatusOK, result)
}

type scoreEntry struct {
	PrincipleID string `json:"principleId"`
	Score       int    `json:"score"`
	Reasoning   string `json:"reasoning"`
}

type principlesResponse struct {
	Success     bool                  `json:"success"`
	Scores      []scoreEntry          `json:"scores"`
	Status      domain.AnalysisStatus `json:"status"`
	FailureKind domain.FailureKind    `json:"failureKind,omitempty"`
}

func (h *Handlers) handlePrinciples(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(h)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := h.cfg.Scorer.Score(r.Context(), in)
	resp := principlesResponse{
		Success:     result.Status == domain.StatusOK,
		Scores:      make([]scoreEntry, len(result.Scores)),
		Status:      result.Status,
		FailureKind: result.FailureKind,
	}
	for i, s := range result.Scores {
		resp.Scores[i] = scoreEntry{PrincipleID: s.PrincipleID, Score: s.Score, Reasoning: s.Reasoning}
	}
	AddLogField(r.Context(), "analysis_status", string(result.Status))
	writeJSON(w, http.StatusOK, resp)
}

type summaryRequest struct {
	providerFields
	ConversationHistory []domain.Turn `json:"conversationHistory"`
	FlaggedContent      []domain.Flag `json:"flaggedContent"`
	Context             string        `json:"context"`
	Format              string        `json:"format"`
}

type summaryResponse struct {
	Summary     string                `json:"summary"`
	Status      domain.AnalysisStatus `json:"status"`
	FailureKind domain.FailureKind    `json:"failureKind,omitempty"`
}

func newSummaryResponse(s domain.Summary) summaryResponse {
	return summaryResponse{Summary: s.Text, Status: s.Status, FailureKind: s.FailureKind}
}

func (h *Handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	msgs := make([]domain.Message, 0, len(req.ConversationHistory))
	for i, t := range req.ConversationHistory {
		role, ok := domain.ParseRole(t.Role)
		if !ok {
			continue
		}
		msgs = append(msgs, domain.Message{ID: fmt.Sprintf("req_%d", i), Role: role, Content: t.Content})
	}
	creds, model := req.resolve(h.cfg.Defaults)

	result := h.cfg.Summarizer.Summarize(r.Context(), analyzer.SummaryInput{
		Messages:          msgs,
		Flags:             req.FlaggedContent,
		AdditionalContext: req.Context,
		Format:            req.Format,
		Credentials:       creds,
		Model:             model,
	})
	writeJSON(w, http.StatusOK, newSummaryResponse(result))
}

func (h *Handlers) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Interactions == nil {
		writeError(w, r, notFound("interaction log"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.cfg.Interactions.ListInteractions(r.Context(), opts)
	if err != nil {
		writeError(w, r, fmt.Errorf("list interactions: %w", err))
		return
	}
	if items == nil {
		items = []*storage.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": items})
}

func listOptions(r *http.Request) (storage.ListOptions, error) {
	q := r.URL.Query()
	opts := storage.ListOptions{Purpose: q.Get("purpose"), Limit: 50}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, badRequest("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return opts, nil
}

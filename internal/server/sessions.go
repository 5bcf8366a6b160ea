package server

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/conversation"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/export"
	"github.com/tjfontaine/convolens/internal/session"
	"github.com/tjfontaine/convolens/internal/transcript"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

func (h *Handlers) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s, ok := h.cfg.Sessions.Get(id)
		if !ok {
			writeError(w, r, notFound("session"))
			return
		}
		AddLogField(r.Context(), "session_id", id)
		fn(w, r, s)
	}
}

// sessionSettings is the analysis configuration a session carries. The API
// key is write-only.
type sessionSettings struct {
	providerFields
	AdditionalContext string `json:"additionalContext,omitempty"`
}

func (h *Handlers) analysisOptions(in sessionSettings) conversation.AnalysisOptions {
	creds, model := in.resolve(h.cfg.Defaults)
	return conversation.AnalysisOptions{
		Credentials:       creds,
		Model:             model,
		AdditionalContext: in.AdditionalContext,
	}
}

type sessionView struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	LastAccess        time.Time `json:"lastAccess"`
	MessageCount      int       `json:"messageCount"`
	Cutoff            int       `json:"cutoff"`
	Version           uint64    `json:"version"`
	Model             string    `json:"model,omitempty"`
	BaseURL           string    `json:"baseUrl,omitempty"`
	AdditionalContext string    `json:"additionalContext,omitempty"`
}

func newSessionView(s *session.Session) sessionView {
	opts := s.Store.AnalysisOptions()
	return sessionView{
		ID:                s.ID,
		CreatedAt:         s.CreatedAt,
		LastAccess:        s.LastAccess(),
		MessageCount:      s.Store.Len(),
		Cutoff:            s.Store.Cutoff(),
		Version:           s.Store.Version(),
		Model:             opts.Model,
		BaseURL:           opts.Credentials.BaseURL,
		AdditionalContext: opts.AdditionalContext,
	}
}

func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionSettings
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.cfg.Sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrLimit) {
			writeError(w, r, &httpError{status: http.StatusServiceUnavailable, msg: "session limit reached"})
			return
		}
		writeError(w, r, err)
		return
	}
	s.Store.SetAnalysisOptions(h.analysisOptions(req))
	AddLogField(r.Context(), "session_id", s.ID)
	writeJSON(w, http.StatusCreated, newSessionView(s))
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.cfg.Sessions.List()
	views := make([]sessionView, len(list))
	for i, s := range list {
		views[i] = newSessionView(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, newSessionView(s))
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.cfg.Sessions.Delete(id) {
		writeError(w, r, notFound("session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleSessionSettings(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req sessionSettings
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	s.Store.SetAnalysisOptions(h.analysisOptions(req))
	writeJSON(w, http.StatusOK, newSessionView(s))
}

type sessionChatRequest struct {
	Content string `json:"content"`
}

type sessionChatResponse struct {
	Error string         `json:"error,omitempty"`
	User  domain.Message `json:"user"`
	Reply domain.Message `json:"reply"`
}

func (h *Handlers) handleSessionChat(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req sessionChatRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, badRequest("content must not be empty"))
		return
	}

	user, reply, err := s.Store.SendChat(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, conversation.ErrNoGateway) {
			writeError(w, r, &httpError{status: http.StatusInternalServerError, msg: "chat is not configured"})
			return
		}
		AddError(r.Context(), err)
		apiErr := domain.AsAPIError(err)
		writeJSON(w, apiErr.HTTPStatusCode(), sessionChatResponse{
			Error: apiErr.UserMessage(),
			User:  user,
			Reply: reply,
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionChatResponse{User: user, Reply: reply})
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *Handlers) handleAppendMessage(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req appendMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		writeError(w, r, badRequest("unknown role %q", req.Role))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, badRequest("content must not be empty"))
		return
	}
	writeJSON(w, http.StatusCreated, s.Store.AppendMessage(role, req.Content))
}

func (h *Handlers) handleListMessages(w http.ResponseWriter, r *http.Request, s *session.Session) {
	msgs := s.Store.FilteredMessages()
	if r.URL.Query().Get("all") == "true" {
		msgs = s.Store.Messages()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"cutoff":   s.Store.Cutoff(),
		"total":    s.Store.Len(),
	})
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

// handleTranscript replaces the conversation with an uploaded transcript,
// sent either as text/plain or as {"transcript": "..."}.
func (h *Handlers) handleTranscript(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var msgs []domain.Message
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		parsed, err := transcript.ParseReader(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, badRequest("read transcript: %v", err))
			return
		}
		msgs = parsed
	} else {
		var req transcriptRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		msgs = transcript.Parse(req.Transcript)
	}

	s.Store.ImportMessages(msgs)
	AddLogField(r.Context(), "imported", fmt.Sprint(len(msgs)))
	writeJSON(w, http.StatusOK, map[string]any{"messageCount": len(msgs)})
}

type analyzeRequest struct {
	Force bool `json:"force"`
}

func (h *Handlers) handleSessionAnalyze(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	opts := h.cfg.Batch
	opts.Force = req.Force

	report := s.Store.AnalyzeAll(r.Context(), opts)
	writeJSON(w, http.StatusOK, report)
}

type cutoffRequest struct {
	Cutoff int `json:"cutoff"`
}

func (h *Handlers) handleCutoff(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req cutoffRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cutoff": s.Store.SetCutoff(req.Cutoff)})
}

func (h *Handlers) handleFlags(w http.ResponseWriter, r *http.Request, s *session.Session) {
	q := r.URL.Query()
	flags := s.Store.FilteredFlags(conversation.FlagFilter{
		Role:     q.Get("role"),
		Category: q.Get("category"),
		Severity: q.Get("severity"),
	})
	writeJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

func (h *Handlers) handleSeries(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"series": s.Store.VisualizationSeries()})
}

type sessionSummaryRequest struct {
	Format  string `json:"format"`
	Context string `json:"context"`
}

func (h *Handlers) handleSessionSummary(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req sessionSummaryRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	opts := s.Store.AnalysisOptions()
	extra := req.Context
	if extra == "" {
		extra = opts.AdditionalContext
	}

	result := h.cfg.Summarizer.Summarize(r.Context(), analyzer.SummaryInput{
		Messages:          s.Store.FilteredMessages(),
		Flags:             s.Store.FilteredFlags(conversation.FlagFilter{}),
		AdditionalContext: extra,
		Format:            req.Format,
		Credentials:       opts.Credentials,
		Model:             opts.Model,
	})
	writeJSON(w, http.StatusOK, newSummaryResponse(result))
}

func (h *Handlers) sheet(s *session.Session) export.Sheet {
	return export.Build(s.Store.FilteredMessages(), h.cfg.Registry.Categories, s.Store.Principles())
}

// writeDownload buffers the export so a failure can still become a 500.
func writeDownload(w http.ResponseWriter, r *http.Request, contentType, filename string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		writeError(w, r, &httpError{status: http.StatusInternalServerError, msg: "export failed: " + err.Error()})
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) handleExportCSV(w http.ResponseWriter, r *http.Request, s *session.Session) {
	sheet := h.sheet(s)
	writeDownload(w, r, "text/csv; charset=utf-8", "conversation-"+s.ID+".csv", func(b *bytes.Buffer) error {
		return export.WriteCSV(b, sheet)
	})
}

// handleExportTable renders Markdown by default; ?mode=ascii gives the
// terminal layout.
func (h *Handlers) handleExportTable(w http.ResponseWriter, r *http.Request, s *session.Session) {
	mode := export.Markdown
	if m := r.URL.Query().Get("mode"); m != "" {
		mode = export.ParseMode(m)
	}
	contentType, ext := "text/markdown; charset=utf-8", ".md"
	if mode == export.ASCII {
		contentType, ext = "text/plain; charset=utf-8", ".txt"
	}
	sheet := h.sheet(s)
	writeDownload(w, r, contentType, "conversation-"+s.ID+ext, func(b *bytes.Buffer) error {
		_, err := b.WriteString(export.RenderTable(sheet, mode))
		return err
	})
}

func (h *Handlers) handleExportJSON(w http.ResponseWriter, r *http.Request, s *session.Session) {
	sheet := h.sheet(s)
	writeDownload(w, r, "application/json", "conversation-"+s.ID+".json", func(b *bytes.Buffer) error {
		return export.WriteJSON(b, sheet)
	})
}

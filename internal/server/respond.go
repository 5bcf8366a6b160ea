package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tjfontaine/convolens/internal/domain"
)

const maxBodyBytes = 8 << 20

// httpError is a failure raised by the server itself rather than a provider.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &httpError{status: http.StatusNotFound, msg: what + " not found"}
}

func tooManyRequests() error {
	return &httpError{status: http.StatusTooManyRequests, msg: "Too many requests. Please slow down."}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {error}. Provider errors keep their status
// (401, 429, otherwise 500) and a user-facing message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	var he *httpError
	if errors.As(err, &he) {
		writeJSON(w, he.status, errorResponse{Error: he.msg})
		return
	}
	apiErr := domain.AsAPIError(err)
	writeJSON(w, apiErr.HTTPStatusCode(), errorResponse{Error: apiErr.UserMessage()})
}

// decodeJSON reads a bounded JSON body into v. An empty body is accepted
// only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &httpError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

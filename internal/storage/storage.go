// Package storage defines the interaction log: an audit trail of model
// gateway calls. Conversation state itself is never persisted.
package storage

import (
	"context"
	"time"
)

// Interaction is one recorded gateway call.
type Interaction struct {
	ID              string        `json:"id"`
	Purpose         string        `json:"purpose"`
	Model           string        `json:"model"`
	BaseURL         string        `json:"baseUrl,omitempty"`
	Status          string        `json:"status"`
	ErrorType       string        `json:"errorType,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	Duration        time.Duration `json:"duration"`
	ResponseExcerpt string        `json:"responseExcerpt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Interaction statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ListOptions filters and pages interaction listings. Results are newest first.
type ListOptions struct {
	Purpose string
	Limit   int
	Offset  int
}

// InteractionStore persists interactions.
type InteractionStore interface {
	SaveInteraction(ctx context.Context, interaction *Interaction) error
	ListInteractions(ctx context.Context, opts ListOptions) ([]*Interaction, error)
	Close() error
}

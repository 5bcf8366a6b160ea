package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
)

// ErrNoGateway is returned by SendChat when the store has no gateway.
var ErrNoGateway = errors.New("conversation: no gateway configured")

// SendChat appends the user's message, sends the whole conversation to the
// model and appends its reply. Both messages are analyzed like any other.
// On failure a synthetic assistant message explaining the error is appended
// instead, and the error is returned.
func (s *Store) SendChat(ctx context.Context, content string) (user, reply domain.Message, err error) {
	if s.gw == nil {
		return domain.Message{}, domain.Message{}, ErrNoGateway
	}

	user = s.AppendMessage(domain.RoleUser, content)
	opts := s.AnalysisOptions()

	text, err := s.gw.Chat(ctx, gateway.ChatRequest{
		Purpose:     gateway.PurposeChat,
		Messages:    domain.Turns(s.Messages()),
		Credentials: opts.Credentials,
		Model:       opts.Model,
	})
	if err != nil {
		apiErr := domain.AsAPIError(err)
		s.logger.Warn("chat completion failed",
			slog.String("error_type", string(apiErr.Type)),
			slog.String("error", err.Error()),
		)
		reply = s.appendMessage(domain.RoleAssistant, "Error: "+apiErr.UserMessage(), false)
		return user, reply, fmt.Errorf("send chat: %w", err)
	}

	reply = s.AppendMessage(domain.RoleAssistant, text)
	return user, reply, nil
}

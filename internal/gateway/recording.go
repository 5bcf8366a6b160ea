package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/storage"
)

const excerptLimit = 512

// Recording decorates a Gateway with structured logging, prometheus metrics
// and, when a store is set, the interaction log.
type Recording struct {
	next   Gateway
	store  storage.InteractionStore
	logger *slog.Logger
	now    func() time.Time
}

var _ Gateway = (*Recording)(nil)

// NewRecording wraps next. store may be nil.
func NewRecording(next Gateway, store storage.InteractionStore, logger *slog.Logger) *Recording {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recording{next: next, store: store, logger: logger, now: time.Now}
}

func (r *Recording) Chat(ctx context.Context, req ChatRequest) (string, error) {
	start := r.now()
	out, err := r.next.Chat(ctx, req)
	r.record(ctx, req.Purpose, req.Model, req.Credentials.BaseURL, start, out, err)
	return out, err
}

func (r *Recording) ListModels(ctx context.Context, creds domain.Credentials) ([]domain.Model, error) {
	start := r.now()
	models, err := r.next.ListModels(ctx, creds)
	excerpt := ""
	if err == nil {
		excerpt = strconv.Itoa(len(models)) + " models"
	}
	r.record(ctx, PurposeModels, "", creds.BaseURL, start, excerpt, err)
	return models, err
}

func (r *Recording) record(ctx context.Context, purpose, model, baseURL string, start time.Time, out string, err error) {
	duration := r.now().Sub(start)
	if purpose == "" {
		purpose = PurposeChat
	}

	in := &storage.Interaction{
		ID:              "int_" + uuid.New().String(),
		Purpose:         purpose,
		Model:           model,
		BaseURL:         baseURL,
		Status:          storage.StatusOK,
		Duration:        duration,
		ResponseExcerpt: domain.Truncate(strings.TrimSpace(out), excerptLimit),
		CreatedAt:       start,
	}

	if err != nil {
		apiErr := domain.AsAPIError(err)
		in.Status = storage.StatusError
		in.ErrorType = string(apiErr.Type)
		in.ErrorMessage = apiErr.Message
		r.logger.Warn("gateway call failed",
			slog.String("purpose", purpose),
			slog.String("model", model),
			slog.String("error_type", in.ErrorType),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
	} else {
		r.logger.Debug("gateway call completed",
			slog.String("purpose", purpose),
			slog.String("model", model),
			slog.Duration("duration", duration),
		)
	}

	metrics.ObserveGatewayCall(purpose, in.Status, duration)

	if r.store == nil {
		return
	}
	// The log must not lose entries when the caller's context is cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.SaveInteraction(saveCtx, in); err != nil {
		r.logger.Error("failed to record interaction",
			slog.String("purpose", purpose),
			slog.String("error", err.Error()),
		)
	}
}

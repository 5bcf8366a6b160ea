package conversation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/domain"
)

const (
	DefaultBatchDelay       = 1 * time.Second
	DefaultRateLimitBackoff = 10 * time.Second
)

// BatchOptions configures AnalyzeAll.
type BatchOptions struct {
	// Delay is the fixed pause between messages.
	Delay time.Duration
	// RateLimitBackoff is the extra pause after a rate-limited message.
	RateLimitBackoff time.Duration
	// Force re-analyzes messages that already have ok results.
	Force bool
	// Progress, when set, is called after each message is merged.
	Progress func(done, total int)
}

// BatchReport summarizes an AnalyzeAll run.
type BatchReport struct {
	Total       int  `json:"total"`
	Analyzed    int  `json:"analyzed"`
	Skipped     int  `json:"skipped"`
	Degraded    int  `json:"degraded"`
	RateLimited int  `json:"rateLimited"`
	Aborted     bool `json:"aborted"`
	Cancelled   bool `json:"cancelled"`
}

// AnalyzeAll re-runs flagging and scoring over the filtered messages one at a
// time, pacing calls with a fixed delay. A rate-limited message adds a fixed
// back-off; a rejected credential stops the run since retrying cannot help.
func (s *Store) AnalyzeAll(ctx context.Context, opts BatchOptions) BatchReport {
	if opts.Delay <= 0 {
		opts.Delay = DefaultBatchDelay
	}
	if opts.RateLimitBackoff <= 0 {
		opts.RateLimitBackoff = DefaultRateLimitBackoff
	}

	s.mu.RLock()
	all := cloneMessages(s.messages)
	visible := s.visibleLocked()
	aopts := s.opts
	s.mu.RUnlock()

	report := BatchReport{Total: visible}
	limiter := rate.NewLimiter(rate.Every(opts.Delay), 1)

	for i := 0; i < visible; i++ {
		msg := all[i]
		if !opts.Force && analyzed(msg) {
			report.Skipped++
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			report.Cancelled = true
			break
		}

		in := analyzer.FlagInput{
			Message:           msg,
			Context:           domain.Turns(ContextWindow(all, i, s.windowSize)),
			AdditionalContext: aopts.AdditionalContext,
			Credentials:       aopts.Credentials,
			Model:             aopts.Model,
		}
		flagging, scoring := s.analyzeOne(ctx, in)
		if flagging != nil {
			s.ApplyFlaggingResult(msg.ID, *flagging)
		}
		if scoring != nil {
			s.ApplyPrincipleScoringResult(msg.ID, *scoring)
		}
		report.Analyzed++

		kinds := failureKinds(flagging, scoring)
		if len(kinds) > 0 {
			report.Degraded++
		}
		if opts.Progress != nil {
			opts.Progress(report.Analyzed+report.Skipped, visible)
		}

		if kinds[domain.FailureAuthentication] {
			s.logger.Warn("batch analysis stopped: credentials rejected", slog.String("message_id", msg.ID))
			report.Aborted = true
			break
		}
		if kinds[domain.FailureRateLimit] {
			report.RateLimited++
			s.logger.Info("batch analysis rate limited, backing off",
				slog.String("message_id", msg.ID),
				slog.Duration("backoff", opts.RateLimitBackoff),
			)
			if !sleep(ctx, opts.RateLimitBackoff) {
				report.Cancelled = true
				break
			}
		}
	}

	s.logger.Info("batch analysis finished",
		slog.Int("total", report.Total),
		slog.Int("analyzed", report.Analyzed),
		slog.Int("skipped", report.Skipped),
		slog.Int("degraded", report.Degraded),
		slog.Bool("cancelled", report.Cancelled),
	)
	return report
}

// analyzeOne runs both analyses for one message concurrently.
func (s *Store) analyzeOne(ctx context.Context, in analyzer.FlagInput) (*domain.FlaggingAnalysis, *domain.PrincipleScoring) {
	var (
		flagging *domain.FlaggingAnalysis
		scoring  *domain.PrincipleScoring
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.flagger != nil {
		g.Go(func() error {
			r := s.flagger.Flag(gctx, in)
			flagging = &r
			return nil
		})
	}
	if s.scorer != nil {
		g.Go(func() error {
			r := s.scorer.Score(gctx, in)
			scoring = &r
			return nil
		})
	}
	_ = g.Wait()
	return flagging, scoring
}

func analyzed(m domain.Message) bool {
	return m.FlaggingAnalysis != nil && m.FlaggingAnalysis.Status != domain.StatusDegraded &&
		m.PrincipleScoring != nil && m.PrincipleScoring.Status != domain.StatusDegraded
}

func failureKinds(f *domain.FlaggingAnalysis, sc *domain.PrincipleScoring) map[domain.FailureKind]bool {
	kinds := make(map[domain.FailureKind]bool)
	if f != nil && f.Status == domain.StatusDegraded {
		kinds[f.FailureKind] = true
	}
	if sc != nil && sc.Status == domain.StatusDegraded {
		kinds[sc.FailureKind] = true
	}
	return kinds
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

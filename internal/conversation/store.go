// Package conversation is the single source of truth for one session's
// messages, flags and scores. It schedules analyses as messages arrive,
// merges their results by message id and derives every filtered view.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/convolens/internal/analyzer"
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/gateway"
	"github.com/tjfontaine/convolens/internal/metrics"
	"github.com/tjfontaine/convolens/internal/registry"
)

const (
	DefaultContextWindow   = 5
	DefaultAnalysisTimeout = 60 * time.Second
)

// Flagger produces a flagging analysis. Implementations must be total.
type Flagger interface {
	Flag(ctx context.Context, in analyzer.FlagInput) domain.FlaggingAnalysis
}

// Scorer produces a principle scoring. Implementations must be total.
type Scorer interface {
	Score(ctx context.Context, in analyzer.ScoreInput) domain.PrincipleScoring
}

// AnalysisOptions are the per-session settings handed to every analyzer call.
type AnalysisOptions struct {
	Credentials       domain.Credentials
	Model             string
	AdditionalContext string
}

// Option configures a Store.
type Option func(*Store)

// WithFlagger sets the flagging analyzer.
func WithFlagger(f Flagger) Option {
	return func(s *Store) { s.flagger = f }
}

// WithScorer sets the principle scorer.
func WithScorer(sc Scorer) Option {
	return func(s *Store) { s.scorer = sc }
}

// WithGateway sets the gateway used by SendChat.
func WithGateway(gw gateway.Gateway) Option {
	return func(s *Store) { s.gw = gw }
}

// WithAnalysisEnabled toggles automatic analysis on append.
func WithAnalysisEnabled(enabled bool) Option {
	return func(s *Store) { s.analysisEnabled = enabled }
}

// WithContextWindow sets how many messages an analysis sees.
func WithContextWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithAnalysisTimeout bounds each scheduled analysis.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Store) { s.analysisTimeout = d }
}

// WithGlobalFlagDedup makes a re-analysis replace the message's entries in the
// global flag and score lists instead of appending to them.
func WithGlobalFlagDedup(enabled bool) Option {
	return func(s *Store) { s.globalDedup = enabled }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator for message ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithAnalysisOptions sets the initial analysis options.
func WithAnalysisOptions(o AnalysisOptions) Option {
	return func(s *Store) { s.opts = o }
}

// Store holds one conversation. All methods are safe for concurrent use and
// every read returns copies.
type Store struct {
	mu       sync.RWMutex
	messages []domain.Message
	index    map[string]int
	flags    []domain.Flag
	scores   []domain.PrincipleScore
	cutoff   int
	version  uint64
	lastTime time.Time
	opts     AnalysisOptions

	principles      *registry.Principles
	flagger         Flagger
	scorer          Scorer
	gw              gateway.Gateway
	analysisEnabled bool
	windowSize      int
	analysisTimeout time.Duration
	globalDedup     bool
	logger          *slog.Logger
	now             func() time.Time
	newID           func() string

	inflight sync.WaitGroup
}

// New creates an empty store whose series follow principles.
func New(principles *registry.Principles, opts ...Option) *Store {
	s := &Store{
		index:           make(map[string]int),
		principles:      principles,
		analysisEnabled: true,
		windowSize:      DefaultContextWindow,
		analysisTimeout: DefaultAnalysisTimeout,
		logger:          slog.Default(),
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Principles returns the registry the series are built from.
func (s *Store) Principles() *registry.Principles {
	return s.principles
}

// SetAnalysisOptions replaces the analysis options for future analyses.
func (s *Store) SetAnalysisOptions(o AnalysisOptions) {
	s.mu.Lock()
	s.opts = o
	s.mu.Unlock()
}

// AnalysisOptions returns the current analysis options.
func (s *Store) AnalysisOptions() AnalysisOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// AppendMessage appends a message and, when analysis is enabled, schedules
// flagging and scoring for it. It does not wait for either.
func (s *Store) AppendMessage(role domain.Role, content string) domain.Message {
	return s.appendMessage(role, content, s.analysisEnabled)
}

func (s *Store) appendMessage(role domain.Role, content string, analyze bool) domain.Message {
	s.mu.Lock()
	ts := s.now()
	if ts.Before(s.lastTime) {
		ts = s.lastTime
	}
	s.lastTime = ts

	msg := domain.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.version++

	window := domain.Turns(ContextWindow(s.messages, len(s.messages)-1, s.windowSize))
	opts := s.opts
	s.mu.Unlock()

	metrics.ObserveMessage(string(role))
	s.logger.Debug("message appended",
		slog.String("message_id", msg.ID),
		slog.String("role", string(role)),
		slog.Bool("analyze", analyze),
	)

	if analyze {
		s.schedule(msg, window, opts)
	}
	return msg.Clone()
}

// schedule runs flagging and scoring for msg in their own goroutines.
func (s *Store) schedule(msg domain.Message, window []domain.Turn, opts AnalysisOptions) {
	in := analyzer.FlagInput{
		Message:           msg,
		Context:           window,
		AdditionalContext: opts.AdditionalContext,
		Credentials:       opts.Credentials,
		Model:             opts.Model,
	}

	if s.flagger != nil {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			ctx, cancel := s.analysisContext()
			defer cancel()
			s.ApplyFlaggingResult(msg.ID, s.flagger.Flag(ctx, in))
		}()
	}
	if s.scorer != nil {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			ctx, cancel := s.analysisContext()
			defer cancel()
			s.ApplyPrincipleScoringResult(msg.ID, s.scorer.Score(ctx, in))
		}()
	}
}

// analysisContext is detached from any request so a finished HTTP call does
// not cancel the analyses it started.
func (s *Store) analysisContext() (context.Context, context.CancelFunc) {
	if s.analysisTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.analysisTimeout)
}

// Wait blocks until every scheduled analysis has been merged.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// ApplyFlaggingResult replaces the message's flagging analysis and appends
// its flags to the global list. Flags are deduplicated by category within the
// call. An unknown message id is ignored.
func (s *Store) ApplyFlaggingResult(messageID string, result domain.FlaggingAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[messageID]
	if !ok {
		s.logger.Debug("dropping flagging result for unknown message", slog.String("message_id", messageID))
		return
	}
	msg := &s.messages[i]

	result = reconcileFlagging(msg, result.Clone(), s.now(), s.newID)
	msg.FlaggingAnalysis = &result
	msg.Flags = append([]domain.Flag(nil), result.Flags...)
	msg.SeverityBreakdown = result.SeverityBreakdown.Clone()

	if s.globalDedup {
		s.flags = removeFlagsFor(s.flags, messageID)
	}
	s.flags = append(s.flags, result.Flags...)
	s.version++

	for _, f := range result.Flags {
		metrics.ObserveFlag(f.Category, string(f.Severity))
	}
}

// ApplyPrincipleScoringResult replaces the message's scoring and appends its
// scores to the global list. An unknown message id is ignored.
func (s *Store) ApplyPrincipleScoringResult(messageID string, result domain.PrincipleScoring) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[messageID]
	if !ok {
		s.logger.Debug("dropping scoring result for unknown message", slog.String("message_id", messageID))
		return
	}

	scoring := result
	scoring.Scores = make([]domain.PrincipleScore, len(result.Scores))
	for j, sc := range result.Scores {
		sc.MessageID = messageID
		sc.Score = domain.ClampScore(sc.Score)
		if sc.ID == "" {
			sc.ID = s.newID()
		}
		scoring.Scores[j] = sc
	}
	s.messages[i].PrincipleScoring = &scoring

	if s.globalDedup {
		s.scores = removeScoresFor(s.scores, messageID)
	}
	s.scores = append(s.scores, scoring.Scores...)
	s.version++
}

// Messages returns every message, ignoring the cutoff.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

// Message returns one message by id.
func (s *Store) Message(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Flags returns the global flag list, ignoring the cutoff.
func (s *Store) Flags() []domain.Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Flag(nil), s.flags...)
}

// Scores returns the global score list, ignoring the cutoff.
func (s *Store) Scores() []domain.PrincipleScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PrincipleScore(nil), s.scores...)
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Version increases on every mutation so pollers can detect change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Clear empties the conversation. Results still in flight become no-ops.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.index = make(map[string]int)
	s.flags = nil
	s.scores = nil
	s.cutoff = 0
	s.version++
}

// ImportMessages replaces the conversation with msgs without scheduling any
// analysis. Missing ids are generated.
func (s *Store) ImportMessages(msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]domain.Message, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	s.flags = nil
	s.scores = nil
	s.cutoff = 0
	for _, m := range msgs {
		m = m.Clone()
		if m.ID == "" {
			m.ID = s.newID()
		}
		if _, dup := s.index[m.ID]; dup {
			m.ID = s.newID()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		if m.CreatedAt.After(s.lastTime) {
			s.lastTime = m.CreatedAt
		}
		for j := range m.Flags {
			m.Flags[j].MessageID = m.ID
		}
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
		s.flags = append(s.flags, m.Flags...)
		if m.PrincipleScoring != nil {
			s.scores = append(s.scores, m.PrincipleScoring.Scores...)
		}
	}
	s.version++
}

func cloneMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

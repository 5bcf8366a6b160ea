package domain

import (
	"strings"
	"time"
)

// Severity grades a concern. Discrete flags never carry SeverityNone.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so the stronger of two can be picked.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

func parseSeverity(raw string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityNone:
		return SeverityNone, true
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

// NormalizeFlagSeverity maps raw model output onto the flag severity enum.
// Unknown values, and "none", become low: a flag only exists when something
// was found.
func NormalizeFlagSeverity(raw string) Severity {
	s, ok := parseSeverity(raw)
	if !ok || s == SeverityNone {
		return SeverityLow
	}
	return s
}

// NormalizeBreakdownSeverity maps raw model output onto the breakdown enum.
// Unknown values become none.
func NormalizeBreakdownSeverity(raw string) Severity {
	s, ok := parseSeverity(raw)
	if !ok {
		return SeverityNone
	}
	return s
}

// AnalysisStatus tells a verified result apart from a fallback one.
type AnalysisStatus string

const (
	StatusOK       AnalysisStatus = "ok"
	StatusDegraded AnalysisStatus = "degraded"
)

// FailureKind says why an analysis degraded.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureAuthentication FailureKind = "authentication"
	FailureRateLimit      FailureKind = "rate_limit"
	FailureProvider       FailureKind = "provider"
	FailureParse          FailureKind = "parse"
)

// Flag is one discrete concern raised about one message.
type Flag struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	Category  string    `json:"category"`
	Severity  Severity  `json:"severity"`
	Reason    string    `json:"reason"`
	Excerpt   string    `json:"excerpt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SeverityBreakdown maps every registered category to a severity.
type SeverityBreakdown map[string]Severity

// Clone copies the breakdown.
func (b SeverityBreakdown) Clone() SeverityBreakdown {
	if b == nil {
		return nil
	}
	out := make(SeverityBreakdown, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// FlaggingAnalysis is the result of one flagging call for one message. A
// message holds at most one; a new result replaces the old one wholesale.
type FlaggingAnalysis struct {
	ShouldFlag        bool              `json:"shouldFlag"`
	Reasoning         string            `json:"reasoning"`
	FullReasoning     string            `json:"fullReasoning,omitempty"`
	Flags             []Flag            `json:"flags"`
	SeverityBreakdown SeverityBreakdown `json:"severityBreakdown"`
	AnalyzedAt        time.Time         `json:"analyzedAt"`
	Status            AnalysisStatus    `json:"status"`
	FailureKind       FailureKind       `json:"failureKind,omitempty"`
}

// Clone copies the analysis including its flags and breakdown.
func (a FlaggingAnalysis) Clone() FlaggingAnalysis {
	out := a
	out.Flags = append([]Flag(nil), a.Flags...)
	out.SeverityBreakdown = a.SeverityBreakdown.Clone()
	return out
}

// PrincipleScore is one principle's evaluation of one message on the signed
// -5..+5 scale.
type PrincipleScore struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	PrincipleID string    `json:"principleId"`
	Score       int       `json:"score"`
	Reasoning   string    `json:"reasoning"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	MinScore = -5
	MaxScore = 5
)

// ClampScore bounds a raw score to the principle scale.
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// PrincipleScoring bundles one score per registered principle.
type PrincipleScoring struct {
	Scores      []PrincipleScore `json:"scores"`
	ScoredAt    time.Time        `json:"scoredAt"`
	Status      AnalysisStatus   `json:"status"`
	FailureKind FailureKind      `json:"failureKind,omitempty"`
}

// ScoreFor returns the score recorded for a principle.
func (p *PrincipleScoring) ScoreFor(principleID string) (PrincipleScore, bool) {
	if p == nil {
		return PrincipleScore{}, false
	}
	for _, s := range p.Scores {
		if s.PrincipleID == principleID {
			return s, true
		}
	}
	return PrincipleScore{}, false
}

// SeriesPoint is one chart sample. MessageIndex is the position in the
// filtered message list the series was derived from.
type SeriesPoint struct {
	MessageIndex int       `json:"messageIndex"`
	Score        int       `json:"score"`
	Reasoning    string    `json:"reasoning"`
	Timestamp    time.Time `json:"timestamp"`
}

// VisualizationSeries is the per-principle chart data split by role.
type VisualizationSeries struct {
	PrincipleID   string        `json:"principleId"`
	PrincipleName string        `json:"principleName"`
	User          []SeriesPoint `json:"user"`
	Assistant     []SeriesPoint `json:"assistant"`
}

// Summary is the free-text digest of a conversation.
type Summary struct {
	Text        string         `json:"summary"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Status      AnalysisStatus `json:"status"`
	FailureKind FailureKind    `json:"failureKind,omitempty"`
}

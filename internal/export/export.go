// Package export flattens the filtered conversation into one row per message
// and writes it as CSV, an ASCII or Markdown table, or JSON.
package export

import (
	"strings"
	"time"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/registry"
)

// CategorySeverity is one breakdown cell.
type CategorySeverity struct {
	Category string          `json:"category"`
	Severity domain.Severity `json:"severity"`
}

// ScoreCell is one principle's score for a message. Scored is false when the
// message has not been scored.
type ScoreCell struct {
	PrincipleID string `json:"principleId"`
	Score       int    `json:"score"`
	Reasoning   string `json:"reasoning"`
	Scored      bool   `json:"scored"`
}

// Row carries the full analysis state of one message.
type Row struct {
	Index             int                `json:"index"`
	ID                string             `json:"id"`
	Timestamp         time.Time          `json:"timestamp"`
	Role              domain.Role        `json:"role"`
	Content           string             `json:"content"`
	FlagCategories    []string           `json:"flagCategories"`
	FlagSeverities    []domain.Severity  `json:"flagSeverities"`
	FlagReasons       []string           `json:"flagReasons"`
	ShouldFlag        bool               `json:"shouldFlag"`
	FlaggingReasoning string             `json:"flaggingReasoning"`
	FlaggingStatus    string             `json:"flaggingStatus"`
	SeverityBreakdown []CategorySeverity `json:"severityBreakdown"`
	Scores            []ScoreCell        `json:"scores"`
}

// Sheet is a set of rows with the registries that shaped its columns.
type Sheet struct {
	Categories []registry.Category  `json:"-"`
	Principles []registry.Principle `json:"-"`
	Rows       []Row                `json:"rows"`
}

// Build flattens messages against the registries.
func Build(messages []domain.Message, cats *registry.Categories, principles *registry.Principles) Sheet {
	return Sheet{
		Categories: cats.All(),
		Principles: principles.All(),
		Rows:       Rows(messages, cats, principles),
	}
}

// Rows flattens messages. Breakdown and score cells follow registry order so
// every row has the same shape.
func Rows(messages []domain.Message, cats *registry.Categories, principles *registry.Principles) []Row {
	rows := make([]Row, 0, len(messages))
	for i, m := range messages {
		row := Row{
			Index:          i,
			ID:             m.ID,
			Timestamp:      m.CreatedAt,
			Role:           m.Role,
			Content:        m.Content,
			FlagCategories: []string{},
			FlagSeverities: []domain.Severity{},
			FlagReasons:    []string{},
		}
		for _, f := range m.Flags {
			row.FlagCategories = append(row.FlagCategories, f.Category)
			row.FlagSeverities = append(row.FlagSeverities, f.Severity)
			row.FlagReasons = append(row.FlagReasons, f.Reason)
		}
		if fa := m.FlaggingAnalysis; fa != nil {
			row.ShouldFlag = fa.ShouldFlag
			row.FlaggingReasoning = fa.Reasoning
			row.FlaggingStatus = string(fa.Status)
		}
		for _, c := range cats.All() {
			sev, ok := m.SeverityBreakdown[c.ID]
			if !ok {
				sev = domain.SeverityNone
			}
			row.SeverityBreakdown = append(row.SeverityBreakdown, CategorySeverity{Category: c.ID, Severity: sev})
		}
		for _, p := range principles.All() {
			cell := ScoreCell{PrincipleID: p.ID}
			if sc, ok := m.PrincipleScoring.ScoreFor(p.ID); ok {
				cell.Score = sc.Score
				cell.Reasoning = sc.Reasoning
				cell.Scored = true
			}
			row.Scores = append(row.Scores, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func joinSeverities(s []domain.Severity) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = string(v)
	}
	return strings.Join(parts, "; ")
}

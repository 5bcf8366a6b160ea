package conversation

import (
	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/registry"
)

// BuildSeries derives one series per principle, split by role. MessageIndex
// is the position in messages; unscored messages contribute no point.
func BuildSeries(messages []domain.Message, principles []registry.Principle) []domain.VisualizationSeries {
	out := make([]domain.VisualizationSeries, 0, len(principles))
	for _, p := range principles {
		series := domain.VisualizationSeries{
			PrincipleID:   p.ID,
			PrincipleName: p.Name,
			User:          []domain.SeriesPoint{},
			Assistant:     []domain.SeriesPoint{},
		}
		for i, m := range messages {
			sc, ok := m.PrincipleScoring.ScoreFor(p.ID)
			if !ok {
				continue
			}
			pt := domain.SeriesPoint{
				MessageIndex: i,
				Score:        sc.Score,
				Reasoning:    sc.Reasoning,
				Timestamp:    m.CreatedAt,
			}
			if m.Role == domain.RoleAssistant {
				series.Assistant = append(series.Assistant, pt)
			} else {
				series.User = append(series.User, pt)
			}
		}
		out = append(out, series)
	}
	return out
}

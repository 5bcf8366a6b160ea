package conversation

import (
	"strings"

	"github.com/tjfontaine/convolens/internal/domain"
)

// FlagFilter narrows FilteredFlags. Each field is either empty or "all" to
// match everything, or an exact value.
type FlagFilter struct {
	Role     string
	Category string
	Severity string
}

func matches(filter, value string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.EqualFold(filter, "all") || filter == value
}

func (f FlagFilter) roleMatches(role domain.Role) bool {
	if matches(f.Role, string(role)) {
		return true
	}
	// Accept the transcript spellings, e.g. "ai" for assistant.
	r, ok := domain.ParseRole(f.Role)
	return ok && r == role
}

// SetCutoff clamps n to [0, len(messages)] and stores it. Zero means no
// cutoff. It returns the stored value.
func (s *Store) SetCutoff(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	if n != s.cutoff {
		s.cutoff = n
		s.version++
	}
	return s.cutoff
}

// Cutoff returns the stored cutoff.
func (s *Store) Cutoff() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cutoff
}

// visibleLocked is the number of messages that survive the cutoff.
func (s *Store) visibleLocked() int {
	if s.cutoff == 0 || s.cutoff >= len(s.messages) {
		return len(s.messages)
	}
	return s.cutoff
}

// FilteredMessages returns the prefix of the conversation the cutoff keeps.
func (s *Store) FilteredMessages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages[:s.visibleLocked()])
}

// FilteredFlags returns global flags whose message survives the cutoff and
// that match every filter.
func (s *Store) FilteredFlags(filter FlagFilter) []domain.Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleLocked()
	out := []domain.Flag{}
	for _, f := range s.flags {
		i, ok := s.index[f.MessageID]
		if !ok || i >= visible {
			continue
		}
		if !filter.roleMatches(s.messages[i].Role) ||
			!matches(filter.Category, f.Category) ||
			!matches(filter.Severity, string(f.Severity)) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// VisualizationSeries rebuilds the chart data for every registered principle
// from the filtered messages.
func (s *Store) VisualizationSeries() []domain.VisualizationSeries {
	return BuildSeries(s.FilteredMessages(), s.principles.All())
}

package conversation

import "github.com/tjfontaine/convolens/internal/domain"

// ContextWindow selects what an analyzer sees for messages[current].
//
// An assistant message is judged against the last size assistant messages
// only, ending with itself, so a user's distress is never attributed to the
// assistant. A user message is judged against the last size messages of any
// role, ending with itself. An out-of-range current yields nil.
func ContextWindow(messages []domain.Message, current, size int) []domain.Message {
	if current < 0 || current >= len(messages) || size <= 0 {
		return nil
	}
	msg := messages[current]

	if msg.Role != domain.RoleAssistant {
		start := current + 1 - size
		if start < 0 {
			start = 0
		}
		return cloneMessages(messages[start : current+1])
	}

	var prior []domain.Message
	for _, m := range messages[:current] {
		if m.Role == domain.RoleAssistant {
			prior = append(prior, m)
		}
	}
	if keep := size - 1; len(prior) > keep {
		prior = prior[len(prior)-keep:]
	}
	return append(cloneMessages(prior), msg.Clone())
}

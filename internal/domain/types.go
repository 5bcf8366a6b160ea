// Package domain holds the conversation data model shared by the store, the
// analyzers and the presentation feed.
package domain

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps loose role labels onto a Role. The second return value is
// false for anything that is neither a user nor an assistant label.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "user", "USER", "User", "human", "Human":
		return RoleUser, true
	case "assistant", "ASSISTANT", "Assistant", "ai", "AI", "Ai", "bot", "Bot":
		return RoleAssistant, true
	}
	return "", false
}

// Message is one conversational turn together with the annotations attached
// to it once analysis completes.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	Flags             []Flag            `json:"flags,omitempty"`
	FlaggingAnalysis  *FlaggingAnalysis `json:"flaggingAnalysis,omitempty"`
	SeverityBreakdown SeverityBreakdown `json:"severityBreakdown,omitempty"`
	PrincipleScoring  *PrincipleScoring `json:"principleScoring,omitempty"`
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (m Message) Clone() Message {
	out := m
	if m.Flags != nil {
		out.Flags = append([]Flag(nil), m.Flags...)
	}
	if m.FlaggingAnalysis != nil {
		fa := m.FlaggingAnalysis.Clone()
		out.FlaggingAnalysis = &fa
	}
	out.SeverityBreakdown = m.SeverityBreakdown.Clone()
	if m.PrincipleScoring != nil {
		ps := *m.PrincipleScoring
		ps.Scores = append([]PrincipleScore(nil), m.PrincipleScoring.Scores...)
		out.PrincipleScoring = &ps
	}
	return out
}

// Turn is the role/content pair sent to a model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turns projects messages onto the role/content pairs a model consumes.
func Turns(msgs []Message) []Turn {
	out := make([]Turn, len(msgs))
	for i, m := range msgs {
		out[i] = Turn{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Credentials carry the caller-supplied provider key and endpoint.
type Credentials struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Model is one entry of a provider's model listing.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

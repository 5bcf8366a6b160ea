// Package transcript parses "ROLE: content" plain-text transcripts into
// messages.
package transcript

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/convolens/internal/domain"
)

// DefaultInterval spaces the synthetic timestamps.
const DefaultInterval = time.Minute

var (
	userLine      = regexp.MustCompile(`(?i)^(user):\s*(.*)$`)
	assistantLine = regexp.MustCompile(`(?i)^(ai|assistant):\s*(.*)$`)
)

// Option configures parsing.
type Option func(*parser)

type parser struct {
	now      func() time.Time
	newID    func() string
	interval time.Duration
}

// WithClock sets the time the last message is stamped with.
func WithClock(now func() time.Time) Option {
	return func(p *parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(p *parser) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithInterval sets the spacing between synthetic timestamps.
func WithInterval(d time.Duration) Option {
	return func(p *parser) {
		if d > 0 {
			p.interval = d
		}
	}
}

// Parse reads a transcript. A line starting with "user:" opens a user
// message, "ai:" or "assistant:" opens an assistant message (any case), other
// non-blank lines continue the open message and blank lines are skipped.
// Text without any role prefix yields no messages.
//
// Message i of n is stamped now-(n-1-i)*interval so order is preserved.
func Parse(text string, opts ...Option) []domain.Message {
	msgs, _ := ParseReader(strings.NewReader(text), opts...)
	return msgs
}

// ParseReader is Parse over a reader. Only read errors are returned.
func ParseReader(r io.Reader, opts ...Option) ([]domain.Message, error) {
	p := &parser{
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	type pending struct {
		role  domain.Role
		lines []string
	}
	var (
		parsed  []pending
		current *pending
	)
	flush := func() {
		if current != nil {
			parsed = append(parsed, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := userLine.FindStringSubmatch(trimmed); m != nil {
			flush()
			current = &pending{role: domain.RoleUser, lines: []string{m[2]}}
			continue
		}
		if m := assistantLine.FindStringSubmatch(trimmed); m != nil {
			flush()
			current = &pending{role: domain.RoleAssistant, lines: []string{m[2]}}
			continue
		}
		if current != nil {
			current.lines = append(current.lines, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	flush()

	now := p.now()
	n := len(parsed)
	msgs := make([]domain.Message, 0, n)
	for i, pm := range parsed {
		msgs = append(msgs, domain.Message{
			ID:        p.newID(),
			Role:      pm.role,
			Content:   strings.TrimSpace(strings.Join(pm.lines, "\n")),
			CreatedAt: now.Add(-time.Duration(n-1-i) * p.interval),
		})
	}
	return msgs, nil
}

// Format renders messages back into the transcript format.
func Format(msgs []domain.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		label := "USER"
		if m.Role == domain.RoleAssistant {
			label = "AI"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
	}
	return b.String()
}

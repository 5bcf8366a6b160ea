package transcript

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/convolens/internal/domain"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type view struct {
	Role    domain.Role
	Content string
}

func views(msgs []domain.Message) []view {
	out := []view{}
	for _, m := range msgs {
		out = append(out, view{m.Role, m.Content})
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []view
	}{
		{
			name: "round trip",
			text: "USER: hi\nAI: hello\nUSER: bye",
			want: []view{
				{domain.RoleUser, "hi"},
				{domain.RoleAssistant, "hello"},
				{domain.RoleUser, "bye"},
			},
		},
		{
			name: "case insensitive prefixes",
			text: "user: a\nAssistant: b\nAi:c",
			want: []view{
				{domain.RoleUser, "a"},
				{domain.RoleAssistant, "b"},
				{domain.RoleAssistant, "c"},
			},
		},
		{
			name: "continuation lines and blank lines",
			text: "USER: first line\nsecond line\n\n\nAI: reply\r\n  indented more\n",
			want: []view{
				{domain.RoleUser, "first line\nsecond line"},
				{domain.RoleAssistant, "reply\nindented more"},
			},
		},
		{
			name: "text before the first prefix is dropped",
			text: "Transcript export\nUSER: hi",
			want: []view{{domain.RoleUser, "hi"}},
		},
		{
			name: "no prefixes",
			text: "just some notes\nwithout roles",
			want: []view{},
		},
		{
			name: "empty",
			text: "",
			want: []view{},
		},
		{
			name: "empty content line",
			text: "USER:\nwhat about this",
			want: []view{{domain.RoleUser, "what about this"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text, WithClock(func() time.Time { return now }))
			if diff := cmp.Diff(tt.want, views(got)); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTimestampsAndIDs(t *testing.T) {
	msgs := Parse("USER: a\nAI: b\nUSER: c", WithClock(func() time.Time { return now }), WithInterval(2*time.Minute))

	want := []time.Time{now.Add(-4 * time.Minute), now.Add(-2 * time.Minute), now}
	for i, m := range msgs {
		if !m.CreatedAt.Equal(want[i]) {
			t.Errorf("message %d CreatedAt = %v, want %v", i, m.CreatedAt, want[i])
		}
	}

	seen := map[string]bool{}
	for _, m := range msgs {
		if m.ID == "" || seen[m.ID] {
			t.Errorf("bad or duplicate id %q", m.ID)
		}
		seen[m.ID] = true
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestParseReaderError(t *testing.T) {
	if _, err := ParseReader(failingReader{}); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("ParseReader() error = %v", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := "USER: hi\nAI: hello\nUSER: bye\n"
	if got := Format(Parse(in)); got != in {
		t.Errorf("Format(Parse()) = %q, want %q", got, in)
	}
}

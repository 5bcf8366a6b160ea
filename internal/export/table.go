package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the table output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps "md"/"markdown" to Markdown and anything else to ASCII.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return Markdown
	default:
		return ASCII
	}
}

const contentWidth = 60

// RenderTable renders a compact overview: one line per message with its
// flags and principle scores.
func RenderTable(s Sheet, mode Mode) string {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}

	header := table.Row{"#", "Role", "Content", "Flags"}
	for _, p := range s.Principles {
		header = append(header, p.Name)
	}
	w.AppendHeader(header)

	for _, r := range s.Rows {
		flags := make([]string, len(r.FlagCategories))
		for i, c := range r.FlagCategories {
			flags[i] = fmt.Sprintf("%s (%s)", c, r.FlagSeverities[i])
		}
		row := table.Row{r.Index + 1, string(r.Role), oneLine(r.Content), strings.Join(flags, ", ")}
		for _, sc := range r.Scores {
			if sc.Scored {
				row = append(row, fmt.Sprintf("%+d", sc.Score))
			} else {
				row = append(row, "-")
			}
		}
		w.AppendRow(row)
	}

	cfgs := []table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: contentWidth},
	}
	for i := range s.Principles {
		cfgs = append(cfgs, table.ColumnConfig{Number: 5 + i, Align: text.AlignRight})
	}
	w.SetColumnConfigs(cfgs)

	if mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// WriteJSON writes the rows as an indented JSON document.
func WriteJSON(w io.Writer, s Sheet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > contentWidth {
		return string(r[:contentWidth-3]) + "..."
	}
	return s
}

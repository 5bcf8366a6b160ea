package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Header returns the CSV column names for the sheet's registries.
func (s Sheet) Header() []string {
	h := []string{
		"index", "id", "timestamp", "role", "content",
		"flag_categories", "flag_severities", "flag_reasons",
		"should_flag", "flagging_reasoning", "flagging_status",
	}
	for _, c := range s.Categories {
		h = append(h, "severity:"+c.ID)
	}
	for _, p := range s.Principles {
		h = append(h, "score:"+p.ID, "reasoning:"+p.ID)
	}
	return h
}

func (r Row) record() []string {
	rec := []string{
		strconv.Itoa(r.Index),
		r.ID,
		r.Timestamp.Format(time.RFC3339),
		string(r.Role),
		r.Content,
		strings.Join(r.FlagCategories, "; "),
		joinSeverities(r.FlagSeverities),
		strings.Join(r.FlagReasons, "; "),
		strconv.FormatBool(r.ShouldFlag),
		r.FlaggingReasoning,
		r.FlaggingStatus,
	}
	for _, b := range r.SeverityBreakdown {
		rec = append(rec, string(b.Severity))
	}
	for _, sc := range r.Scores {
		score := ""
		if sc.Scored {
			score = strconv.Itoa(sc.Score)
		}
		rec = append(rec, score, sc.Reasoning)
	}
	return rec
}

// WriteCSV writes a header and one record per row.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range s.Rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

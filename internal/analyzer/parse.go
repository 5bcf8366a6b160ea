package analyzer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Strategy names the parse step that produced a result.
type Strategy string

const (
	StrategyStrict    Strategy = "strict"
	StrategyRepaired  Strategy = "repaired"
	StrategyHeuristic Strategy = "heuristic"
	StrategyFallback  Strategy = "fallback"
	StrategyDemo      Strategy = "demo"
)

// parsed is the tagged outcome of the JSON chain. ok is false when every
// strategy failed and the caller must fall through to its own last resort.
type parsed[T any] struct {
	value    T
	strategy Strategy
	ok       bool
}

// candidate turns raw model output into text worth handing to json.Unmarshal.
type candidate struct {
	strategy Strategy
	extract  func(raw string) (string, bool)
}

var jsonChain = []candidate{
	{StrategyStrict, func(raw string) (string, bool) {
		s := strings.TrimSpace(raw)
		return s, strings.HasPrefix(s, "{")
	}},
	{StrategyRepaired, repairJSON},
}

// parseJSON runs the ordered chain, decoding into a fresh T each time. A
// candidate only counts when it is a JSON object carrying at least one of
// keys (any object when keys is empty).
func parseJSON[T any](raw string, keys ...string) parsed[T] {
	for _, c := range jsonChain {
		text, ok := c.extract(raw)
		if !ok || !hasAnyKey(text, keys) {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(text), &v); err == nil {
			return parsed[T]{value: v, strategy: c.strategy, ok: true}
		}
	}
	var zero T
	return parsed[T]{value: zero}
}

func hasAnyKey(text string, keys []string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return false
	}
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// parseArray decodes a bare top-level JSON array, fenced or not.
func parseArray[T any](raw string) ([]T, bool) {
	text := stripFences(raw)
	if !strings.HasPrefix(text, "[") {
		return nil, false
	}
	var v []T
	if err := json.Unmarshal([]byte(dropTrailingCommas(text)), &v); err != nil {
		return nil, false
	}
	return v, true
}

// repairJSON strips markdown fences, keeps the first balanced object and drops
// trailing commas.
func repairJSON(raw string) (string, bool) {
	obj, ok := firstObject(stripFences(raw))
	if !ok {
		return "", false
	}
	return dropTrailingCommas(obj), true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Skip the info string, e.g. ```json.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstObject returns the first top-level {...} span, skipping braces inside
// string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// flexBool accepts true/false, their string forms and numbers. Anything
// else is false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = false
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// flexString accepts strings, numbers and booleans as text. null, objects
// and arrays decode to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	switch t := strings.TrimSpace(string(data)); {
	case t == "null", strings.HasPrefix(t, "{"), strings.HasPrefix(t, "["):
		*f = ""
	default:
		*f = flexString(t)
	}
	return nil
}

// flexBreakdown is a category -> severity object. Anything other than an
// object decodes as empty.
type flexBreakdown map[string]flexString

func (f *flexBreakdown) UnmarshalJSON(data []byte) error {
	var m map[string]flexString
	if err := json.Unmarshal(data, &m); err != nil {
		*f = nil
		return nil
	}
	*f = m
	return nil
}

// flexInt accepts JSON numbers or numeric strings and rounds to the nearest
// integer. Valid is false when the value was absent or not numeric.
type flexInt struct {
	Value int
	Valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = flexInt{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt{Value: roundInt(n), Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = flexInt{}
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "+")), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		*f = flexInt{}
		return nil
	}
	*f = flexInt{Value: roundInt(n), Valid: true}
	return nil
}

func roundInt(n float64) int {
	n = math.Max(math.Min(math.Round(n), math.MaxInt32), math.MinInt32)
	return int(n)
}

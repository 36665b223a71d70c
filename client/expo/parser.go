// Package expo parses the line-oriented Prometheus text exposition into structured samples. Parsing is total: every
// line yields a tagged Line and noise never aborts a snapshot.
package expo

import (
	"strconv"
	"strings"
)

// Kind tags a parsed exposition line.
type Kind int

const (
	Blank Kind = iota
	Comment
	LabeledSample
	UnlabeledSample
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Blank:
		return "blank"
	case Comment:
		return "comment"
	case LabeledSample:
		return "labeled"
	case UnlabeledSample:
		return "unlabeled"
	default:
		return "malformed"
	}
}

// Label is one name/value pair. Order follows the exposition text.
type Label struct {
	Name  string
	Value string
}

// Sample is one data point of a metric.
type Sample struct {
	Name   string
	Labels []Label
	Value  float64
}

// Label returns the value of the named label.
func (s Sample) Label(name string) (string, bool) {
	for _, l := range s.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}

	return "", false
}

// Matches reports whether every given label is present with the given value.
func (s Sample) Matches(want map[string]string) bool {
	for k, v := range want {
		got, ok := s.Label(k)
		if !ok || got != v {
			return false
		}
	}

	return true
}

// Line is the result of parsing one line.
type Line struct {
	Kind   Kind
	Sample Sample
	Reason string
}

func malformed(reason string) Line {
	return Line{Kind: Malformed, Reason: reason}
}

// ParseLine classifies a single line.
func ParseLine(raw string) Line {
	line := strings.TrimSpace(raw)

	switch {
	case line == "":
		return Line{Kind: Blank}
	case line[0] == '#':
		return Line{Kind: Comment}
	}

	if brace := strings.IndexByte(line, '{'); brace >= 0 {
		return parseLabeled(line, brace)
	}

	if strings.ContainsRune(line, '}') {
		return malformed("unbalanced brace")
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return malformed("expected name and value")
	}

	if !validMetricName(fields[0]) {
		return malformed("invalid metric name")
	}

	value, ok := parseValue(fields[1])
	if !ok {
		return malformed("non-numeric value")
	}

	return Line{Kind: UnlabeledSample, Sample: Sample{Name: fields[0], Value: value}}
}

func parseLabeled(line string, brace int) Line {
	name := strings.TrimSpace(line[:brace])
	if !validMetricName(name) {
		return malformed("invalid metric name")
	}

	labels, rest, reason := parseLabels(line[brace+1:])
	if reason != "" {
		return malformed(reason)
	}

	fields := strings.Fields(rest)
	if len(fields) != 1 {
		return malformed("expected exactly one value after label set")
	}

	value, ok := parseValue(fields[0])
	if !ok {
		return malformed("non-numeric value")
	}

	return Line{Kind: LabeledSample, Sample: Sample{Name: name, Labels: labels, Value: value}}
}

// parseLabels consumes `k="v",...}` and returns the labels and the remainder after the closing brace.
func parseLabels(s string) ([]Label, string, string) {
	labels := make([]Label, 0, 4)
	i := 0

	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, "", "unterminated label set"
		}

		if s[i] == '}' {
			return labels, s[i+1:], ""
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, "", "label without value"
		}

		name := strings.TrimSpace(s[i : i+eq])
		if !validLabelName(name) {
			return nil, "", "invalid label name"
		}

		i = skipSpace(s, i+eq+1)
		if i >= len(s) || s[i] != '"' {
			return nil, "", "unquoted label value"
		}

		value, next, ok := readQuoted(s, i+1)
		if !ok {
			return nil, "", "unterminated label value"
		}

		labels = append(labels, Label{Name: name, Value: value})

		i = skipSpace(s, next)
		if i >= len(s) {
			return nil, "", "unterminated label set"
		}

		switch s[i] {
		case ',':
			i++
		case '}':
			return labels, s[i+1:], ""
		default:
			return nil, "", "unexpected character in label set"
		}
	}
}

// readQuoted reads an escaped label value starting after the opening quote. It returns the index after the closing
// quote.
func readQuoted(s string, i int) (string, int, bool) {
	var sb strings.Builder

	for i < len(s) {
		c := s[i]

		switch c {
		case '"':
			return sb.String(), i + 1, true
		case '\\':
			if i+1 >= len(s) {
				return "", 0, false
			}

			i++

			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case '\\', '"':
				sb.WriteByte(s[i])
			default:
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
		default:
			sb.WriteByte(c)
		}

		i++
	}

	return "", 0, false
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}

	return i
}

func parseValue(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func validMetricName(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		switch {
		case r == '_' || r == ':':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}

func validLabelName(name string) bool {
	return validMetricName(name) && !strings.ContainsRune(name, ':')
}

package expo

import (
	"bufio"
	"io"
	"maps"
	"slices"
	"strings"
)

// Snapshot maps a metric name to its samples in file order. Samples with different label sets are never merged.
type Snapshot map[string][]Sample

// ParseStats counts the line kinds seen while parsing.
type ParseStats struct {
	Lines     int
	Samples   int
	Comments  int
	Malformed int
}

// Parse reads the whole exposition and skips malformed lines. The only error is a reader failure.
func Parse(r io.Reader) (Snapshot, error) {
	snap, _, err := ParseWithStats(r)

	return snap, err
}

func ParseWithStats(r io.Reader) (Snapshot, ParseStats, error) {
	snap := make(Snapshot)
	stats := ParseStats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		stats.Lines++

		line := ParseLine(scanner.Text())

		switch line.Kind {
		case LabeledSample, UnlabeledSample:
			stats.Samples++
			snap[line.Sample.Name] = append(snap[line.Sample.Name], line.Sample)
		case Comment:
			stats.Comments++
		case Malformed:
			stats.Malformed++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}

	return snap, stats, nil
}

// ParseString is a convenience wrapper for in-memory text.
func ParseString(text string) Snapshot {
	snap, _ := Parse(strings.NewReader(text))

	return snap
}

// Has reports whether at least one sample exists under exactly name.
func (s Snapshot) Has(name string) bool {
	return len(s[name]) > 0
}

var familySuffixes = []string{"", "_total", "_bucket", "_count", "_sum", "_created"}

// HasFamily also accepts the suffixed series that counters and histograms expose.
func (s Snapshot) HasFamily(name string) bool {
	base := strings.TrimSuffix(name, "_total")

	for _, suffix := range familySuffixes {
		if s.Has(name+suffix) || s.Has(base+suffix) {
			return true
		}
	}

	return false
}

// Sum adds the values of all samples of name whose labels match want.
func (s Snapshot) Sum(name string, want map[string]string) float64 {
	var total float64

	for _, sample := range s[name] {
		if sample.Matches(want) {
			total += sample.Value
		}
	}

	return total
}

// Find returns the first sample of name matching want.
func (s Snapshot) Find(name string, want map[string]string) (Sample, bool) {
	for _, sample := range s[name] {
		if sample.Matches(want) {
			return sample, true
		}
	}

	return Sample{}, false
}

// Names returns the metric names in lexical order.
func (s Snapshot) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Delta is the growth of Sum(name, want) from before to s. Counter resets yield the current value.
func (s Snapshot) Delta(before Snapshot, name string, want map[string]string) float64 {
	cur := s.Sum(name, want)
	prev := before.Sum(name, want)

	if cur < prev {
		return cur
	}

	return cur - prev
}

// Present returns the entries of required that exist as a metric family.
func (s Snapshot) Present(required []string) []string {
	found := make([]string, 0, len(required))

	for _, name := range required {
		if s.HasFamily(name) {
			found = append(found, name)
		}
	}

	return found
}

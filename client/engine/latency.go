package engine

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// LatencySet is an append-only sequence of elapsed milliseconds for one scenario.
type LatencySet struct {
	samples []float64
}

func (s *LatencySet) Add(ms float64) {
	s.samples = append(s.samples, ms)
}

// AddOutcomes records the duration of every outcome that produced an HTTP response.
func (s *LatencySet) AddOutcomes(outcomes []RequestOutcome) {
	for _, o := range outcomes {
		if o.Responded() {
			s.Add(o.ElapsedMillis())
		}
	}
}

func (s *LatencySet) Len() int {
	return len(s.samples)
}

// Samples returns a copy in insertion order.
func (s *LatencySet) Samples() []float64 {
	return slices.Clone(s.samples)
}

// Percentile selects the nearest-rank value: sort ascending, index = round(p/100 * (n-1)) with ties to even, clamped.
// The input is not modified.
func Percentile(samples []float64, p float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}

	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, fmt.Errorf("%w: %v", ErrPercentileRange, p)
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	idx := int(math.RoundToEven(p / 100 * float64(len(sorted)-1)))
	idx = min(max(idx, 0), len(sorted)-1)

	return sorted[idx], nil
}

// Mean returns the arithmetic mean.
func Mean(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}

	return sum / float64(len(samples)), nil
}

// LatencySummary holds the usual distribution figures in milliseconds.
type LatencySummary struct {
	Count              int
	Mean, Min, Max     float64
	P50, P90, P95, P99 float64
}

func Summarize(samples []float64) (LatencySummary, error) {
	mean, err := Mean(samples)
	if err != nil {
		return LatencySummary{}, err
	}

	summary := LatencySummary{Count: len(samples), Mean: mean}
	summary.Min, _ = Percentile(samples, 0)
	summary.Max, _ = Percentile(samples, 100)
	summary.P50, _ = Percentile(samples, 50)
	summary.P90, _ = Percentile(samples, 90)
	summary.P95, _ = Percentile(samples, 95)
	summary.P99, _ = Percentile(samples, 99)

	return summary, nil
}

// Duration converts a millisecond figure back into a time.Duration.
func Duration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func (s LatencySummary) String() string {
	return fmt.Sprintf("n=%d mean=%.1fms p50=%.1fms p95=%.1fms p99=%.1fms max=%.1fms",
		s.Count, s.Mean, s.P50, s.P95, s.P99, s.Max)
}

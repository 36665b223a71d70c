package report

import (
	"time"

	"github.com/croessner/authprobe/client/expo"
)

// TestResult is the verdict of one scenario run. It is created once and never mutated.
type TestResult struct {
	Name     string
	Success  bool
	Duration time.Duration
	Details  string
	Metrics  expo.Snapshot
}

func Pass(name string, d time.Duration, details string) TestResult {
	return TestResult{Name: name, Success: true, Duration: d, Details: details}
}

func Fail(name string, d time.Duration, details string) TestResult {
	return TestResult{Name: name, Success: false, Duration: d, Details: details}
}

// WithMetrics returns a copy carrying the snapshot evidence.
func (r TestResult) WithMetrics(snap expo.Snapshot) TestResult {
	r.Metrics = snap

	return r
}

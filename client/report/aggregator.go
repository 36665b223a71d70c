package report

import (
	"slices"
	"sync"
)

// Aggregator accumulates results in completion order. It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	results []TestResult
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Add(r TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, r)
}

// Results returns a copy of the accumulated results.
func (a *Aggregator) Results() []TestResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.results)
}

func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.results)
}

func (a *Aggregator) Passed() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0

	for _, r := range a.results {
		if r.Success {
			n++
		}
	}

	return n
}

// AllPassed is false for an empty run: no evidence is not a pass.
func (a *Aggregator) AllPassed() bool {
	total := a.Total()

	return total > 0 && a.Passed() == total
}

// ExitCode maps the run to a process status: 0 when every scenario passed, 1 otherwise.
func (a *Aggregator) ExitCode() int {
	if a.AllPassed() {
		return 0
	}

	return 1
}

// PassRate is the share of passed scenarios in percent.
func (a *Aggregator) PassRate() float64 {
	total := a.Total()
	if total == 0 {
		return 0
	}

	return float64(a.Passed()) / float64(total) * 100
}

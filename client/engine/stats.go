package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Tally classifies a batch of outcomes. It is a plain value computed after the join barrier.
type Tally struct {
	Total     int
	ByStatus  map[int]int
	Transport int
	Timeouts  int
	Canceled  int
}

func TallyOutcomes(outcomes []RequestOutcome) Tally {
	t := Tally{Total: len(outcomes), ByStatus: make(map[int]int)}

	for _, o := range outcomes {
		if o.Responded() {
			t.ByStatus[o.Status]++

			continue
		}

		switch {
		case errors.Is(o.Err, ErrTimeout):
			t.Timeouts++
		case errors.Is(o.Err, ErrCanceled):
			t.Canceled++
		default:
			t.Transport++
		}
	}

	return t
}

// Count returns how many outcomes carried status.
func (t Tally) Count(status int) int {
	return t.ByStatus[status]
}

// Successes counts 2xx responses.
func (t Tally) Successes() int {
	n := 0

	for status, c := range t.ByStatus {
		if status >= 200 && status < 300 {
			n += c
		}
	}

	return n
}

// Failed counts outcomes without an HTTP response.
func (t Tally) Failed() int {
	return t.Transport + t.Timeouts + t.Canceled
}

func (t Tally) String() string {
	parts := make([]string, 0, len(t.ByStatus)+3)

	for _, status := range slices.Sorted(maps.Keys(t.ByStatus)) {
		parts = append(parts, fmt.Sprintf("%d=%d", status, t.ByStatus[status]))
	}

	if t.Timeouts > 0 {
		parts = append(parts, fmt.Sprintf("timeout=%d", t.Timeouts))
	}

	if t.Transport > 0 {
		parts = append(parts, fmt.Sprintf("transport=%d", t.Transport))
	}

	if t.Canceled > 0 {
		parts = append(parts, fmt.Sprintf("canceled=%d", t.Canceled))
	}

	return strings.Join(parts, " ")
}

// Statuses lists the status of each outcome in order, 0 for outcomes without a response.
func Statuses(outcomes []RequestOutcome) []int {
	out := make([]int, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}

	return out
}

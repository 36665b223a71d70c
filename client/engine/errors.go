package engine

import (
	"errors"
)

// Per-request failures. They never leave the dispatcher as returned errors; they are recorded on a RequestOutcome
// with status 0.
var (
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout")
	ErrCanceled  = errors.New("canceled before dispatch")
)

var (
	ErrNoSamples       = errors.New("no latency samples")
	ErrPercentileRange = errors.New("percentile out of range")
	ErrInvalidBaseURL  = errors.New("invalid base url")
)

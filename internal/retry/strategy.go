package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/exp/constraints"
)

// Backoff returns the delay before the given retry attempt (0-based) and
// whether retries are exhausted.
type Backoff interface {
	Delay(attempt uint) (time.Duration, bool)
}

type NoRetry struct{}

func (NoRetry) Delay(uint) (time.Duration, bool) {
	return 0, true
}

// Exponential doubles Base for every attempt up to Max and draws the actual
// delay uniformly from [0, delay) ("full jitter").
type Exponential struct {
	Base     time.Duration
	Max      time.Duration
	Attempts uint
	// Jitter defaults to rand.Int64N.
	Jitter func(int64) int64
}

func (e Exponential) Delay(attempt uint) (time.Duration, bool) {
	if attempt >= e.Attempts {
		return 0, true
	}

	ceiling := int64(e.Max)
	if attempt < 63 && e.Base > 0 && int64(e.Base) <= math.MaxInt64>>attempt {
		ceiling = clamp(int64(e.Base)<<attempt, 0, int64(e.Max))
	}
	if ceiling <= 0 {
		return 0, false
	}
	return time.Duration(e.jitter()(ceiling)), false
}

func (e Exponential) jitter() func(int64) int64 {
	if e.Jitter == nil {
		return rand.Int64N
	}
	return e.Jitter
}

func clamp[T constraints.Integer](v T, lo T, hi T) T {
	return max(lo, min(v, hi))
}

package network

import (
	"math"
	"time"
)

// Backoff defines how the probe interval grows while the remote stays
// unreachable.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Next returns the wait before probe number attempt (1-based) with clamping.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Factor <= 0 {
		b.Factor = 2
	}

	delay := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		return b.Max
	}
	d := time.Duration(delay)
	if d <= 0 {
		d = time.Second
	}
	return d
}

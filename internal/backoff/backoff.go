// Package backoff computes the delay schedule used between reconnection
// attempts on the push channel.
package backoff

import (
	"math"
	"time"
)

// Policy defines an exponential backoff schedule. The delay for attempt n
// (counting from zero) is Base * 2^n, clamped to Max.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultPolicy matches the push-channel reconnection schedule:
// 1s, 2s, 4s, ... capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		Base: time.Second,
		Max:  5 * time.Second,
	}
}

// Delay returns the wait before reconnect attempt number attempt.
// Negative attempts are treated as zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = DefaultPolicy().Base
	}
	max := p.Max
	if max <= 0 {
		max = DefaultPolicy().Max
	}

	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(max) || math.IsInf(d, 1) {
		return max
	}
	return time.Duration(d)
}

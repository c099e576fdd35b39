package resilience

import (
	"math/rand"
	"time"
)

// Backoff computes reconnection delays: Base doubled per attempt, capped at
// Max, then spread by a symmetric Jitter fraction.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// MaxAttempts bounds the attempts before giving up; 0 means none
	MaxAttempts int

	// Rand returns a value in [0, 1); nil uses math/rand
	Rand func() float64
}

// DefaultBackoff returns the reconnection policy used when none is configured
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        500 * time.Millisecond,
		Max:         8 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 5,
	}
}

// Raw returns the un-jittered delay before attempt n (1-based)
func (b Backoff) Raw(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		return 0
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Delay returns the jittered delay before attempt n (1-based). The result
// never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Raw(attempt)
	if b.Jitter <= 0 || d == 0 {
		return d
	}

	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	spread := float64(d) * b.Jitter
	d = time.Duration(float64(d) - spread + 2*spread*r())
	if d < 0 {
		d = 0
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Exhausted reports whether attempt n is past the limit
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.MaxAttempts
}

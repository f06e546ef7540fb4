package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy returns how long to wait before retry number attempt,
// counted from 0.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows Base by Factor per attempt up to Max, then spreads
// the result by up to ±Jitter of itself.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64

	// Rand returns a value in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultBackoff is used for read retries: 50ms doubling to 2s, ±20%.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   50 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	attempt = max(attempt, 0)
	delay := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		r := rand.Float64
		if b.Rand != nil {
			r = b.Rand
		}
		delay *= 1 + (2*r()-1)*b.Jitter
	}
	return time.Duration(max(delay, 0))
}

// ConstantBackoff waits the same time before every retry.
type ConstantBackoff time.Duration

func (c ConstantBackoff) Next(int) time.Duration { return time.Duration(c) }

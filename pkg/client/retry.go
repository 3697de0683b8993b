package client

import (
	"math"
	"math/rand"
	"time"
)

// Retryer decides how long to wait before the next reconnection attempt.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based)
	// and whether to keep retrying.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful connection.
	Reset()
}

// ExponentialBackoff doubles the delay on each consecutive failure, capped
// at MaxDelay. The zero MaxRetries means retry forever; deployments that
// prefer failing fast under a sustained outage can bound it.
type ExponentialBackoff struct {
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the delay.
	MaxDelay time.Duration

	// Multiplier is the growth factor per consecutive failure.
	Multiplier float64

	// MaxRetries is the maximum number of attempts (0 for unlimited).
	MaxRetries int

	// Jitter adds randomness to spread reconnect storms.
	Jitter bool

	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor float64
}

// NewExponentialBackoff returns the default reconnect policy: 1s initial,
// doubling, 30s cap, unlimited attempts, no jitter.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (r *ExponentialBackoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter && r.JitterFactor > 0 {
		// math/rand is fine here, jitter is not security-sensitive.
		//nolint:gosec
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoff) Reset() {}

// FixedDelay retries at a constant interval.
type FixedDelay struct {
	Delay      time.Duration
	MaxRetries int
}

func (r *FixedDelay) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelay) Reset() {}

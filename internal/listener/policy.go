package listener

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next connect attempt.
const DefaultReconnectDelay = 3 * time.Second

// Policy decides when, and whether, to reconnect after the push channel
// drops. Attempt numbers count consecutive failures and reset after every
// successful connection.
type Policy struct {
	// Delay is the wait before the first reconnect attempt.
	Delay time.Duration

	// MaxDelay caps the delay when Multiplier grows it. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier scales the delay after each failed attempt. Values <= 1
	// keep the delay fixed.
	Multiplier float64

	// JitterFraction adds ±fraction random jitter to each delay.
	JitterFraction float64

	// MaxAttempts stops reconnecting after this many consecutive failures.
	// Zero retries forever.
	MaxAttempts int
}

// FixedPolicy retries forever with a constant delay.
func FixedPolicy(delay time.Duration) Policy {
	return Policy{Delay: delay, Multiplier: 1}
}

// DefaultPolicy retries forever every three seconds.
func DefaultPolicy() Policy {
	return FixedPolicy(DefaultReconnectDelay)
}

// BackoffPolicy grows the delay exponentially up to maxDelay and gives up
// after maxAttempts consecutive failures (0 = never).
func BackoffPolicy(delay, maxDelay time.Duration, maxAttempts int) Policy {
	return Policy{
		Delay:          delay,
		MaxDelay:       maxDelay,
		Multiplier:     2,
		JitterFraction: 0.2,
		MaxAttempts:    maxAttempts,
	}
}

// Next returns the delay before reconnect attempt number attempt (0-based)
// and false once the policy has given up.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	if p.Delay <= 0 {
		p.Delay = DefaultReconnectDelay
	}

	delay := float64(p.Delay)
	if p.Multiplier > 1 {
		delay *= math.Pow(p.Multiplier, float64(attempt))
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFraction > 0 {
		jitterRange := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay), true
}

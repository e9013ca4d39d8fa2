package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

func ExponentialBackoffWithMaxElapsed(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	exp := ExponentialBackoff(initialInterval, maxInterval, multiplier)
	exp.MaxElapsedTime = maxElapsed
	return exp
}

func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}

// Pause tracks consecutive failures of a long-running loop and yields how long
// to wait before the next attempt. A success resets the sequence.
type Pause struct {
	b backoff.BackOff
}

func NewPause(policy Policy) *Pause {
	policy = policy.withDefaults()
	return &Pause{b: ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier)}
}

func (p *Pause) Next() time.Duration {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		return 0
	}
	return d
}

func (p *Pause) Reset() {
	p.b.Reset()
}

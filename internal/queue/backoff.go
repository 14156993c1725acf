package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes jittered exponential retry delays:
// min(Base * Multiplier^attempt, Max) scaled by a factor in [0.5, 1.5).
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter returns a value in [0, 1). Defaults to math/rand.
	Jitter func() float64
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(b.Base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	return time.Duration(delay * (0.5 + jitter()))
}

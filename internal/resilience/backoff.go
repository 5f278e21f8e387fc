package resilience

import (
	"math/rand"
	"time"
)

// backoffDuration grows exponentially from base, capped, with ±50%
// jitter so a burst of dropped clients does not reconnect in lockstep.
func backoffDuration(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	// jitter in [0.5d, 1.5d)
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

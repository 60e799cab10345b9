package syncer

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes the retry delay for the given attempt number
// (1-based): min(maxDelay, base × 2^(attempt−1)), with ±jitter applied to
// spread retries from many devices reconnecting at once.
func backoffDelay(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	if jitter > 0 {
		spread := float64(delay) * jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

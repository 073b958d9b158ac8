package webhook

import (
	"math/rand"
	"time"
)

// Backoff schedule per attempt. The last entry repeats until attempts
// are exhausted.
var retrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

const (
	// DefaultMaxAttempts is the delivery attempt limit before a
	// delivery is marked exhausted.
	DefaultMaxAttempts = 5

	// jitterFraction spreads retries to avoid synchronized bursts.
	jitterFraction = 0.2
)

// BackoffDelay returns the delay before the next attempt, with ±20% jitter.
// attemptCount counts completed failed attempts, starting at 0.
func BackoffDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retrySchedule) {
		attemptCount = len(retrySchedule) - 1
	}

	base := retrySchedule[attemptCount]
	jitter := (rand.Float64()*2 - 1) * jitterFraction * float64(base)
	return time.Duration(float64(base) + jitter)
}

// NextAttemptAt returns the wall-clock time of the next attempt.
func NextAttemptAt(attemptCount int) time.Time {
	return time.Now().Add(BackoffDelay(attemptCount))
}

// IsExhausted reports whether the attempt budget is spent.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// RetrySchedule returns a copy of the backoff schedule.
func RetrySchedule() []time.Duration {
	return append([]time.Duration{}, retrySchedule...)
}

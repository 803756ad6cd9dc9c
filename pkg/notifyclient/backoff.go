package notifyclient

import "time"

// Backoff returns the delay before reconnect attempt n, starting at 1.
type Backoff func(attempt int) time.Duration

func FixedBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff doubles base on each attempt, capped at limit.
func ExponentialBackoff(base, limit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= limit {
				return limit
			}
		}
		return min(d, limit)
	}
}

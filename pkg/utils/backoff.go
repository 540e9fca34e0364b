package utils

import (
	"time"
)

// ExponentialBackoff returns unit * 2^count capped at max. count <= 0 yields 0.
func ExponentialBackoff(count int, unit time.Duration, max time.Duration) time.Duration {
	if count <= 0 || unit <= 0 {
		return 0
	}
	delay := unit
	for i := 0; i < count; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

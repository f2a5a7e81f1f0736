package common

import "time"

// RetryDelay returns the wait before the next attempt of a failed batch
// operation: 1s, 2s, 4s for attempts 1..3, doubling thereafter.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return time.Second << (attempt - 1)
}

package syncer

import (
	"time"

	retry "github.com/sethvargo/go-retry"
)

const (
	DefaultBaseDelay = 5 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// Backoff returns the retry delay after a failure of an operation that had already
// failed n times: min(base * 2^n, max).
func Backoff(base, max time.Duration, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	b := retry.WithCappedDuration(max, retry.NewExponential(base))
	var d time.Duration
	for i := 0; i <= n; i++ {
		d, _ = b.Next()
		if d >= max {
			break
		}
	}
	return d
}

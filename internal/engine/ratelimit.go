package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps transfer throughput to
// bytesPerSec. The burst is set to 1 MB so a whole copy chunk usually
// passes in one wait.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// waitBytes blocks until n more bytes may pass limiter. A nil limiter
// never blocks.
func waitBytes(ctx context.Context, limiter *rate.Limiter, n int64) error {
	if limiter == nil {
		return nil
	}
	for n > 0 {
		k := min(n, int64(limiter.Burst()))
		if err := limiter.WaitN(ctx, int(k)); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

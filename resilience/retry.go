package resilience

import (
	"math"
	"math/rand"
	"time"

	"github.com/ltyfantasy/goapn/core"
)

// BackoffJitterFraction bounds the +/- spread applied on top of the
// exponential delay, preventing synchronized retries across concurrent
// requests to the same business (thundering-herd mitigation).
const BackoffJitterFraction = 0.2

// ShouldRetry reports whether a Request's retry policy permits another
// attempt, given its current Retry.Count (spec.md §3: "if type = Limit
// then count <= max"). RetryNever never retries; RetryForever always
// does; RetryLimit retries while Count < Max.
func ShouldRetry(cfg core.RetryConfig) bool {
	switch cfg.Type {
	case core.RetryForever:
		return true
	case core.RetryLimit:
		return cfg.Count < cfg.Max
	default:
		return false
	}
}

// NextDelay computes the wait before the next attempt, indexed by how
// many attempts have already run (cfg.Count after incrementing).
// Delay grows exponentially from IntervalMs and is perturbed by random
// jitter within BackoffJitterFraction; a zero IntervalMs yields a zero
// base delay (immediate retry), matching scenario S3's intervalMs=0.
func NextDelay(cfg core.RetryConfig) time.Duration {
	base := time.Duration(cfg.IntervalMs) * time.Millisecond
	if base <= 0 {
		return 0
	}

	attempt := cfg.Count
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(1.5, float64(attempt-1))

	jitter := 1 + (rand.Float64()*2-1)*BackoffJitterFraction
	delay *= jitter

	return time.Duration(delay)
}

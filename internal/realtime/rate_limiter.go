package realtime

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds inbound frames per connection: Burst frames, refilled
// evenly over Interval.
type RateLimit struct {
	Burst    int
	Interval time.Duration
}

type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg RateLimit) *rateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	perSecond := rate.Limit(float64(cfg.Burst) / cfg.Interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, cfg.Burst)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}

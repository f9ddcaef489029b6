package rate_limiting_strategies

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aryangodara/rate_limited"
	"github.com/redis/go-redis/v9"
)

var (
	_ rate_limited.Strategy = &fixedWindowLimiter{}
)

type fixedWindowLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewFixedWindowLimiter creates a new fixed window rate limiter.
//
// Windows are aligned on multiples of the request duration and each window
// has its own counter key ("<key>:<window start ms>"), incremented
// atomically. A counter never exceeds the limit in admitted requests, at the
// cost of bursts of up to twice the limit across a window boundary.
func NewFixedWindowLimiter(client redis.UniversalClient, now func() time.Time) rate_limited.Strategy {
	return &fixedWindowLimiter{
		client: client,
		now:    now,
	}
}

// Execute performs rate limiting using a fixed window strategy.
func (f *fixedWindowLimiter) Execute(ctx context.Context, r *rate_limited.Request) (*rate_limited.Result, error) {
	if r.Duration < time.Millisecond {
		return nil, fmt.Errorf("window for key %v must be at least 1ms, got %v", r.Key, r.Duration)
	}

	now := f.now()
	window := r.Duration.Milliseconds()
	start := now.UnixMilli() - now.UnixMilli()%window
	expiresAt := time.UnixMilli(start + window)
	key := r.Key + ":" + strconv.FormatInt(start, 10)

	// Redis transaction so the counter never lives without a TTL.
	p := f.client.TxPipeline()
	incr := p.Incr(ctx, key)
	p.PExpire(ctx, key, expiresAt.Sub(now))

	if _, err := p.Exec(ctx); err != nil {
		return nil, fmt.Errorf("error executing Redis transaction for key %v: %w", key, err)
	}

	requestCount, err := incr.Result()
	if err != nil {
		return nil, fmt.Errorf("error incrementing key %v: %w", key, err)
	}

	if requestCount > r.Limit {
		return &rate_limited.Result{
			State:         rate_limited.Deny,
			TotalRequests: r.Limit,
			ExpiresAt:     expiresAt,
		}, nil
	}

	return &rate_limited.Result{
		State:         rate_limited.Allow,
		TotalRequests: requestCount,
		ExpiresAt:     expiresAt,
	}, nil
}

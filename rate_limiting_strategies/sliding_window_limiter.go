package rate_limiting_strategies

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aryangodara/rate_limited"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	_ rate_limited.Strategy = &slidingWindowLimiter{}
)

const (
	maxSortedSetScore = "+inf"
	minSortedSetScore = "-inf"

	// commands queued in the sliding window transaction
	slidingWindowCommands = 4
)

type slidingWindowLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewSlidingWindowLimiter initializes a new sliding window log rate limiter.
//
// Every attempt is stored as a member of a sorted set named after the key,
// scored with its timestamp in milliseconds. A single MULTI/EXEC
// transaction purges members older than the window, adds the attempt,
// refreshes the TTL of the set to the window and counts what remains. When
// the count exceeds the limit the attempt is removed again and denied.
//
// The removal happens after the transaction, so concurrent callers near the
// limit may all see a count above it and all be denied, or may see counts at
// the limit before the others' removals and be admitted together; a window
// can therefore admit slightly more than the limit under contention.
func NewSlidingWindowLimiter(client redis.UniversalClient, now func() time.Time) rate_limited.Strategy {
	return &slidingWindowLimiter{
		client: client,
		now:    now,
	}
}

// Execute performs rate limiting using a sliding window strategy.
func (s *slidingWindowLimiter) Execute(ctx context.Context, r *rate_limited.Request) (*rate_limited.Result, error) {
	now := s.now()
	expiresAt := now.Add(r.Duration)
	minimum := now.Add(-r.Duration)

	// every request needs an UUID, the timestamp keeps members readable
	item := uuid.NewString() + "-" + strconv.FormatInt(now.UnixMilli(), 10)

	p := s.client.TxPipeline()

	// we then remove all the expired requests
	p.ZRemRangeByScore(ctx, r.Key, minSortedSetScore, "("+strconv.FormatInt(minimum.UnixMilli(), 10))

	// we add the current request
	p.ZAdd(ctx, r.Key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: item,
	})

	// abandoned keys expire with the window
	p.PExpire(ctx, r.Key, r.Duration)

	// count how many non-expired requests we have on the sorted set
	p.ZCount(ctx, r.Key, minSortedSetScore, maxSortedSetScore)

	cmds, err := p.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute sorted set transaction for key %v: %w", r.Key, err)
	}

	if len(cmds) != slidingWindowCommands {
		return nil, fmt.Errorf("%w: expected %d replies for key %v, got %d", rate_limited.ErrMalformedReply, slidingWindowCommands, r.Key, len(cmds))
	}

	count, ok := cmds[slidingWindowCommands-1].(*redis.IntCmd)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected count reply %T for key %v", rate_limited.ErrMalformedReply, cmds[slidingWindowCommands-1], r.Key)
	}

	totalRequests, err := count.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count items for key %v: %w", r.Key, err)
	}

	if totalRequests > r.Limit {
		// the attempt never happened
		if err := s.client.ZRem(ctx, r.Key, item).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove denied item from key %v: %w", r.Key, err)
		}

		return &rate_limited.Result{
			State:         rate_limited.Deny,
			TotalRequests: totalRequests - 1,
			ExpiresAt:     expiresAt,
		}, nil
	}

	return &rate_limited.Result{
		State:         rate_limited.Allow,
		TotalRequests: totalRequests,
		ExpiresAt:     expiresAt,
	}, nil
}

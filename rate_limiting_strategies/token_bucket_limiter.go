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
	_ rate_limited.Strategy = &tokenBucketLimiter{}
)

// tokenBucketLua refills the bucket for the elapsed time, takes one token
// if available and returns {allowed, tokens left, ms until full}.
const tokenBucketLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local rate = capacity / window

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = capacity
  ts = now
else
  local delta = math.max(0, now - ts)
  tokens = math.min(capacity, tokens + (delta * rate))
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", key, "tokens", tostring(tokens), "ts", tostring(ts))
redis.call("PEXPIRE", key, window)

return { allowed, math.floor(tokens), math.ceil((capacity - tokens) / rate) }
`

type tokenBucketLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	now    func() time.Time
}

// NewTokenBucketLimiter creates a new Token Bucket rate limiter.
//
// The bucket of a key holds up to the request limit in tokens and refills
// completely over the request duration. State lives in a hash updated by a
// Lua script, so each attempt is a single atomic round-trip.
func NewTokenBucketLimiter(client redis.UniversalClient, now func() time.Time) rate_limited.Strategy {
	return &tokenBucketLimiter{
		client: client,
		script: redis.NewScript(tokenBucketLua),
		now:    now,
	}
}

func (t *tokenBucketLimiter) Execute(ctx context.Context, r *rate_limited.Request) (*rate_limited.Result, error) {
	window := r.Duration.Milliseconds()
	if window < 1 {
		return nil, fmt.Errorf("window for key %v must be at least 1ms, got %v", r.Key, r.Duration)
	}

	now := t.now()

	values, err := t.script.Run(ctx, t.client, []string{r.Key}, r.Limit, window, now.UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to run token bucket script for key %v: %w", r.Key, err)
	}

	allowed, remaining, refill, err := parseTokenBucketReply(values)
	if err != nil {
		return nil, fmt.Errorf("token bucket reply for key %v: %w", r.Key, err)
	}

	state := rate_limited.Deny
	if allowed == 1 {
		state = rate_limited.Allow
	}

	return &rate_limited.Result{
		State:         state,
		TotalRequests: r.Limit - remaining,
		ExpiresAt:     now.Add(time.Duration(refill) * time.Millisecond),
	}, nil
}

func parseTokenBucketReply(values any) (allowed, remaining, refill int64, err error) {
	arr, ok := values.([]any)
	if !ok || len(arr) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %v", rate_limited.ErrMalformedReply, values)
	}

	parsed := make([]int64, len(arr))
	for i, v := range arr {
		if parsed[i], err = toInt64(v); err != nil {
			return 0, 0, 0, err
		}
	}

	return parsed[0], parsed[1], parsed[2], nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", rate_limited.ErrMalformedReply, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: unexpected value type %T", rate_limited.ErrMalformedReply, value)
	}
}

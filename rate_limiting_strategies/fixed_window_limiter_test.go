package rate_limiting_strategies

import (
	"context"
	"testing"
	"time"

	"github.com/aryangodara/rate_limited"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter_Execute(t *testing.T) {
	tt := []struct {
		desc        string
		runs        int64
		timeAdvance time.Duration
		state       rate_limited.State
		total       int64
		expiresAt   time.Time
	}{
		{
			desc:      "returns Allow for requests under limit",
			runs:      5,
			state:     rate_limited.Allow,
			total:     5,
			expiresAt: time.Date(2024, time.June, 23, 10, 16, 0, 0, time.UTC),
		},
		{
			desc:      "returns Deny for requests over limit",
			runs:      6,
			state:     rate_limited.Deny,
			total:     5,
			expiresAt: time.Date(2024, time.June, 23, 10, 16, 0, 0, time.UTC),
		},
		{
			desc:        "starts a new counter in the next window",
			runs:        7,
			timeAdvance: 5 * time.Second,
			state:       rate_limited.Allow,
			total:       1,
			expiresAt:   time.Date(2024, time.June, 23, 10, 17, 0, 0, time.UTC),
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			server, client := newTestRedis(t)

			now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)
			limiter := NewFixedWindowLimiter(client, func() time.Time { return now })
			req := &rate_limited.Request{Key: "some-user", Limit: 5, Duration: time.Minute}

			var lastRes *rate_limited.Result
			for x := int64(0); x < ts.runs; x++ {
				if x > 0 && ts.timeAdvance != 0 {
					server.FastForward(ts.timeAdvance)
					now = now.Add(ts.timeAdvance)
				}

				res, err := limiter.Execute(context.Background(), req)
				require.NoError(t, err)
				lastRes = res
			}

			assert.Equal(t, ts.state, lastRes.State)
			assert.Equal(t, ts.total, lastRes.TotalRequests)
			assert.True(t, ts.expiresAt.Equal(lastRes.ExpiresAt), "expected %v, got %v", ts.expiresAt, lastRes.ExpiresAt)
		})
	}
}

func TestFixedWindowLimiter_CounterExpiresWithWindow(t *testing.T) {
	server, client := newTestRedis(t)

	now := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)
	limiter := NewFixedWindowLimiter(client, func() time.Time { return now })

	_, err := limiter.Execute(context.Background(), &rate_limited.Request{Key: "ttl", Limit: 1, Duration: time.Minute})
	require.NoError(t, err)

	key := "ttl:" + "1719137700000"
	assert.True(t, server.Exists(key))
	assert.Equal(t, 30*time.Second, server.TTL(key))
}

func TestFixedWindowLimiter_RejectsSubMillisecondWindow(t *testing.T) {
	_, client := newTestRedis(t)

	limiter := NewFixedWindowLimiter(client, time.Now)

	_, err := limiter.Execute(context.Background(), &rate_limited.Request{Key: "tiny", Limit: 1, Duration: time.Microsecond})
	assert.Error(t, err)
}

package rate_limited

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var (
	_ ResultChecker = &StrategyChecker{}
)

// Request defines a request to be rate-limited.
type Request struct {
	Key      string
	Limit    int64
	Duration time.Duration
}

// State represents the result of rate limiting.
type State int64

const (
	Deny State = iota
	Allow
)

// State strings for HTTP headers
var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Result is the outcome of a rate limit check.
type Result struct {
	State         State
	TotalRequests int64
	ExpiresAt     time.Time
}

// Strategy is a rate limiting algorithm backed by a shared store. It
// records the attempt described by r and reports whether it fits the quota.
// Store failures are returned as errors.
type Strategy interface {
	Execute(ctx context.Context, r *Request) (*Result, error)
}

// RateChecker records an attempt for key and reports whether it is
// admitted. It never fails: a checker that cannot reach its store denies.
type RateChecker interface {
	Check(ctx context.Context, key string, maxRequests int64, interval Interval) bool
}

// ResultChecker is a RateChecker also reporting the strategy result of a
// check. A nil result means the check failed and is denied.
type ResultChecker interface {
	RateChecker
	CheckResult(ctx context.Context, key string, maxRequests int64, interval Interval) *Result
}

// RateCheckerFunc adapts a function to a RateChecker.
type RateCheckerFunc func(ctx context.Context, key string, maxRequests int64, interval Interval) bool

func (f RateCheckerFunc) Check(ctx context.Context, key string, maxRequests int64, interval Interval) bool {
	return f(ctx, key, maxRequests, interval)
}

// StrategyChecker is a RateChecker running a Strategy and failing closed.
type StrategyChecker struct {
	strategy Strategy
	logger   *zap.Logger
}

// NewStrategyChecker creates a RateChecker over strategy. A nil logger
// discards logs.
func NewStrategyChecker(strategy Strategy, logger *zap.Logger) *StrategyChecker {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StrategyChecker{
		strategy: strategy,
		logger:   logger.Named("checker"),
	}
}

// Check runs the strategy once. Errors are logged and reported as denied.
func (c *StrategyChecker) Check(ctx context.Context, key string, maxRequests int64, interval Interval) bool {
	result := c.CheckResult(ctx, key, maxRequests, interval)
	return result != nil && result.State == Allow
}

// CheckResult runs the strategy once and returns its result, or nil when
// the strategy failed.
func (c *StrategyChecker) CheckResult(ctx context.Context, key string, maxRequests int64, interval Interval) *Result {
	result, err := c.strategy.Execute(ctx, &Request{
		Key:      key,
		Limit:    maxRequests,
		Duration: interval.Duration(),
	})
	if err != nil {
		c.logger.Error("rate limit check failed, denying",
			zap.String("key", key),
			zap.Error(err))
		return nil
	}

	return result
}

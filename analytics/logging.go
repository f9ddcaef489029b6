package analytics

import (
	"context"

	"github.com/aryangodara/rate_limited"
	"go.uber.org/zap"
)

var (
	_ rate_limited.Analytics = &LoggingAnalytics{}
)

// LoggingAnalytics writes one structured log entry per decision.
type LoggingAnalytics struct {
	logger *zap.Logger
}

// NewLoggingAnalytics creates a sink logging to logger.
func NewLoggingAnalytics(logger *zap.Logger) *LoggingAnalytics {
	return &LoggingAnalytics{logger: logger.Named("analytics")}
}

func (a *LoggingAnalytics) Blocked(_ context.Context, call rate_limited.Call, opts rate_limited.Options, key string) {
	a.logger.Info("call blocked", fields(call, opts, key)...)
}

func (a *LoggingAnalytics) Disabled(_ context.Context, call rate_limited.Call, opts rate_limited.Options, key string) {
	a.logger.Debug("rate limiting disabled", fields(call, opts, key)...)
}

func (a *LoggingAnalytics) Exceeded(_ context.Context, call rate_limited.Call, opts rate_limited.Options, key string, attempts int) {
	a.logger.Warn("rate limit exceeded", append(fields(call, opts, key), zap.Int("attempts", attempts))...)
}

func (a *LoggingAnalytics) RetryInterrupted(_ context.Context, call rate_limited.Call, opts rate_limited.Options, key string) {
	a.logger.Warn("rate limit retry interrupted", fields(call, opts, key)...)
}

func (a *LoggingAnalytics) Succeeded(_ context.Context, call rate_limited.Call, opts rate_limited.Options, key string, attempts int) {
	a.logger.Debug("call admitted", append(fields(call, opts, key), zap.Int("attempts", attempts))...)
}

func fields(call rate_limited.Call, opts rate_limited.Options, key string) []zap.Field {
	return []zap.Field{
		zap.String("type", call.Type),
		zap.String("method", call.Method),
		zap.String("key", key),
		zap.String("resolved_key", opts.ResolvedKey),
		zap.Int64("max_requests", opts.MaxRequests),
		zap.Stringer("interval", opts.Interval),
	}
}

package rate_limited

import (
	"context"
)

var (
	_ Analytics = NopAnalytics{}
	_ Analytics = MultiAnalytics{}
)

// Analytics observes rate limiting decisions. Implementations must not
// block and must not panic; they never influence the decision.
type Analytics interface {
	Blocked(ctx context.Context, call Call, opts Options, key string)
	Disabled(ctx context.Context, call Call, opts Options, key string)
	Exceeded(ctx context.Context, call Call, opts Options, key string, attempts int)
	RetryInterrupted(ctx context.Context, call Call, opts Options, key string)
	Succeeded(ctx context.Context, call Call, opts Options, key string, attempts int)
}

// NopAnalytics discards every event.
type NopAnalytics struct{}

func (NopAnalytics) Blocked(context.Context, Call, Options, string) {}
func (NopAnalytics) Disabled(context.Context, Call, Options, string) {}
func (NopAnalytics) Exceeded(context.Context, Call, Options, string, int) {}
func (NopAnalytics) RetryInterrupted(context.Context, Call, Options, string) {}
func (NopAnalytics) Succeeded(context.Context, Call, Options, string, int) {}

// MultiAnalytics fans every event out to each sink in order.
type MultiAnalytics []Analytics

func (m MultiAnalytics) Blocked(ctx context.Context, call Call, opts Options, key string) {
	for _, a := range m {
		a.Blocked(ctx, call, opts, key)
	}
}

func (m MultiAnalytics) Disabled(ctx context.Context, call Call, opts Options, key string) {
	for _, a := range m {
		a.Disabled(ctx, call, opts, key)
	}
}

func (m MultiAnalytics) Exceeded(ctx context.Context, call Call, opts Options, key string, attempts int) {
	for _, a := range m {
		a.Exceeded(ctx, call, opts, key, attempts)
	}
}

func (m MultiAnalytics) RetryInterrupted(ctx context.Context, call Call, opts Options, key string) {
	for _, a := range m {
		a.RetryInterrupted(ctx, call, opts, key)
	}
}

func (m MultiAnalytics) Succeeded(ctx context.Context, call Call, opts Options, key string, attempts int) {
	for _, a := range m {
		a.Succeeded(ctx, call, opts, key, attempts)
	}
}

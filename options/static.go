package options

import (
	"context"
	"fmt"

	"github.com/aryangodara/rate_limited"
)

var (
	_ rate_limited.OptionsResolver = &StaticResolver{}
)

// StaticResolver resolves options from the declarations registered for a
// call site. The declarations are fixed at startup, so changing a limit
// requires a redeploy; prefer chaining it as the last resolver of a
// DelegatingResolver in production.
type StaticResolver struct {
	registry *rate_limited.Registry
}

// NewStaticResolver creates a resolver reading declarations from registry.
func NewStaticResolver(registry *rate_limited.Registry) *StaticResolver {
	return &StaticResolver{registry: registry}
}

// IsDynamic returns false: declarations cannot change at runtime.
func (s *StaticResolver) IsDynamic() bool {
	return false
}

// Supports returns true for every key; whether the call site is declared is
// only known in Resolve.
func (s *StaticResolver) Supports(string) bool {
	return true
}

func (s *StaticResolver) Resolve(_ context.Context, key string, call rate_limited.Call) (rate_limited.Options, error) {
	decl, ok := s.registry.FindLimit(call)
	if !ok {
		return rate_limited.Options{}, fmt.Errorf("%w: no rate limit declared for %s", rate_limited.ErrAmbiguousOptions, call.Target())
	}

	if decl.Disabled {
		return rate_limited.DisabledOptions(key), nil
	}

	if decl.MaxRequests < 1 || decl.Interval.Amount < 1 {
		return rate_limited.Options{}, fmt.Errorf("%w: %s is enabled, max requests and interval must be greater than 0", rate_limited.ErrIllegalConfiguration, call.Target())
	}

	opts := rate_limited.EnabledOptions(key, decl.MaxRequests, decl.Interval)

	if retry, ok := s.registry.FindRetry(call); ok {
		if retry.Count < 1 || retry.Interval.Amount < 1 {
			return rate_limited.Options{}, fmt.Errorf("%w: retry declaration of %s needs a positive count and interval", rate_limited.ErrIllegalConfiguration, call.Target())
		}
		opts = opts.WithRetry(retry.Count, retry.Interval)
	}

	return opts, nil
}

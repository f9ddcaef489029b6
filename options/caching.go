package options

import (
	"context"
	"sync"

	"github.com/aryangodara/rate_limited"
)

var (
	_ rate_limited.OptionsResolver = &CachingResolver{}
)

// CachingResolver memoizes the options of a resolver that is not dynamic.
// Options of such a resolver only depend on the call site, so they are
// cached per call target and the resolved key is filled in on every hit.
// Keys derived from arguments therefore never grow the cache. Dynamic
// resolvers are always consulted. Errors are not cached.
type CachingResolver struct {
	resolver rate_limited.OptionsResolver
	cache    sync.Map // call target -> rate_limited.Options
}

// NewCachingResolver wraps resolver.
func NewCachingResolver(resolver rate_limited.OptionsResolver) *CachingResolver {
	return &CachingResolver{resolver: resolver}
}

func (c *CachingResolver) IsDynamic() bool {
	return c.resolver.IsDynamic()
}

func (c *CachingResolver) Supports(key string) bool {
	return c.resolver.Supports(key)
}

func (c *CachingResolver) Resolve(ctx context.Context, key string, call rate_limited.Call) (rate_limited.Options, error) {
	if c.resolver.IsDynamic() {
		return c.resolver.Resolve(ctx, key, call)
	}

	target := call.Target()
	if v, ok := c.cache.Load(target); ok {
		opts := v.(rate_limited.Options)
		opts.ResolvedKey = key
		return opts, nil
	}

	opts, err := c.resolver.Resolve(ctx, key, call)
	if err != nil {
		return rate_limited.Options{}, err
	}

	c.cache.Store(target, opts)
	return opts, nil
}

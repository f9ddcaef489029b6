package rate_limited

import (
	"sync"
)

// Call describes one invocation of a guarded operation.
type Call struct {
	// Type is the name of the declaring type, e.g. "billing.Service".
	Type string

	// Method is the name of the invoked method.
	Method string

	// Args are the positional arguments of the invocation.
	Args []any
}

// Target returns the method level registry target "<type>.<method>".
func (c Call) Target() string {
	return c.Type + "." + c.Method
}

// RateLimited declares a rate limit on a call site.
type RateLimited struct {
	// Key names the bucket explicitly. Call sites sharing a key share a
	// quota.
	Key string

	// KeyExpression derives the key from the call when Key is empty.
	// See DefaultKeyGenerator.
	KeyExpression string

	// Disabled turns rate limiting off for the call site.
	Disabled bool

	MaxRequests int64
	Interval    Interval
}

// RateLimitedRetry declares the retry behaviour of a rate limited call site.
type RateLimitedRetry struct {
	Count    int
	Interval Interval
}

// Registry holds rate limit declarations for call sites. Declarations are
// registered either for a whole type ("billing.Service") or for one method
// ("billing.Service.Charge"); the method level declaration wins.
//
// A Registry is built during startup and is safe for concurrent lookups.
type Registry struct {
	mu      sync.RWMutex
	limits  map[string]RateLimited
	retries map[string]RateLimitedRetry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		limits:  make(map[string]RateLimited),
		retries: make(map[string]RateLimitedRetry),
	}
}

// Limit registers a rate limit declaration for target.
func (r *Registry) Limit(target string, limit RateLimited) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits[target] = limit
	return r
}

// Retry registers a retry declaration for target.
func (r *Registry) Retry(target string, retry RateLimitedRetry) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retries[target] = retry
	return r
}

// FindLimit returns the most specific rate limit declaration for call.
func (r *Registry) FindLimit(call Call) (RateLimited, bool) {
	if r == nil {
		return RateLimited{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return find(r.limits, call)
}

// FindRetry returns the most specific retry declaration for call.
func (r *Registry) FindRetry(call Call) (RateLimitedRetry, bool) {
	if r == nil {
		return RateLimitedRetry{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return find(r.retries, call)
}

func find[T any](m map[string]T, call Call) (T, bool) {
	if v, ok := m[call.Target()]; ok {
		return v, true
	}
	v, ok := m[call.Type]
	return v, ok
}

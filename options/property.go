package options

import (
	"context"
	"fmt"
	"strings"

	"github.com/aryangodara/rate_limited"
	"github.com/spf13/cast"
)

var (
	_ rate_limited.OptionsResolver = &PropertyResolver{}
)

// DefaultPropertyPrefix is the namespace read by a PropertyResolver unless
// configured otherwise.
const DefaultPropertyPrefix = "rate.limited"

type (
	// PropertyOption configures a PropertyResolver.
	PropertyOption func(r *PropertyResolver)

	// PropertyResolver resolves options from a flat property namespace:
	//
	//	rate.limited.<key>.enabled             = true
	//	rate.limited.<key>.blocked             = false
	//	rate.limited.<key>.requests            = 5
	//	rate.limited.<key>.interval            = 10
	//	rate.limited.<key>.interval.unit       = SECONDS
	//	rate.limited.<key>.retry.enabled       = true
	//	rate.limited.<key>.retry.count         = 2
	//	rate.limited.<key>.retry.interval      = 1
	//	rate.limited.<key>.retry.interval.unit = MINUTES
	//
	// which admits 5 requests every 10 seconds and retries twice, a minute
	// apart. Units default to MINUTES; blocked and retry.enabled default to
	// false.
	//
	// A key is supported when its enabled property is set, which lets the
	// resolver take part in a DelegatingResolver chain. The source is read on
	// every resolution, so live sources change limits without a restart.
	PropertyResolver struct {
		source PropertySource
		prefix string
	}
)

// WithPrefix replaces DefaultPropertyPrefix.
func WithPrefix(prefix string) PropertyOption {
	return func(r *PropertyResolver) {
		r.prefix = prefix
	}
}

// NewPropertyResolver creates a resolver reading from source.
func NewPropertyResolver(source PropertySource, options ...PropertyOption) (*PropertyResolver, error) {
	r := &PropertyResolver{
		source: source,
		prefix: DefaultPropertyPrefix,
	}

	for _, o := range options {
		o(r)
	}

	if strings.TrimSpace(r.prefix) == "" {
		return nil, fmt.Errorf("%w: property prefix must not be empty", rate_limited.ErrIllegalConfiguration)
	}

	return r, nil
}

// IsDynamic returns true: property sources may be reloaded at runtime.
func (r *PropertyResolver) IsDynamic() bool {
	return true
}

// Supports reports whether the enabled property of key is set.
func (r *PropertyResolver) Supports(key string) bool {
	if strings.TrimSpace(key) == "" {
		return false
	}

	_, ok := r.source.Lookup(r.name(key, "enabled"))
	return ok
}

func (r *PropertyResolver) Resolve(_ context.Context, key string, _ rate_limited.Call) (rate_limited.Options, error) {
	enabled, ok, err := lookup(r, key, "enabled", cast.ToBoolE)
	if err != nil {
		return rate_limited.Options{}, err
	}
	if !ok {
		return rate_limited.Options{}, fmt.Errorf("%w: missing %s property", rate_limited.ErrIllegalConfiguration, r.name(key, "enabled"))
	}

	blocked, _, err := lookup(r, key, "blocked", cast.ToBoolE)
	if err != nil {
		return rate_limited.Options{}, err
	}

	if blocked {
		return rate_limited.BlockedOptions(key), nil
	}
	if !enabled {
		return rate_limited.DisabledOptions(key), nil
	}

	requests, ok1, err := lookup(r, key, "requests", cast.ToInt64E)
	if err != nil {
		return rate_limited.Options{}, err
	}
	interval, ok2, err := lookup(r, key, "interval", cast.ToInt64E)
	if err != nil {
		return rate_limited.Options{}, err
	}
	if !ok1 || !ok2 || requests < 1 || interval < 1 {
		return rate_limited.Options{}, fmt.Errorf("%w: %q .requests and .interval must be positive numbers", rate_limited.ErrIllegalConfiguration, key)
	}

	unit, err := r.unit(key, "interval.unit")
	if err != nil {
		return rate_limited.Options{}, err
	}

	opts := rate_limited.EnabledOptions(key, requests, rate_limited.IntervalOf(interval, unit))

	retryEnabled, _, err := lookup(r, key, "retry.enabled", cast.ToBoolE)
	if err != nil {
		return rate_limited.Options{}, err
	}
	if !retryEnabled {
		return opts, nil
	}

	count, ok1, err := lookup(r, key, "retry.count", cast.ToIntE)
	if err != nil {
		return rate_limited.Options{}, err
	}
	retryInterval, ok2, err := lookup(r, key, "retry.interval", cast.ToInt64E)
	if err != nil {
		return rate_limited.Options{}, err
	}
	if !ok1 || !ok2 || count < 1 || retryInterval < 1 {
		return rate_limited.Options{}, fmt.Errorf("%w: %q .retry.count and .retry.interval must be positive numbers", rate_limited.ErrIllegalConfiguration, key)
	}

	retryUnit, err := r.unit(key, "retry.interval.unit")
	if err != nil {
		return rate_limited.Options{}, err
	}

	return opts.WithRetry(count, rate_limited.IntervalOf(retryInterval, retryUnit)), nil
}

func (r *PropertyResolver) name(key, property string) string {
	return r.prefix + "." + key + "." + property
}

func (r *PropertyResolver) unit(key, property string) (rate_limited.TimeUnit, error) {
	raw, ok, err := lookup(r, key, property, cast.ToStringE)
	if err != nil || !ok {
		return rate_limited.Minutes, err
	}

	unit, err := rate_limited.ParseTimeUnit(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", rate_limited.ErrIllegalConfiguration, r.name(key, property), err)
	}

	return unit, nil
}

func lookup[T any](r *PropertyResolver, key, property string, conv func(any) (T, error)) (T, bool, error) {
	var zero T

	name := r.name(key, property)
	raw, ok := r.source.Lookup(name)
	if !ok {
		return zero, false, nil
	}

	v, err := conv(raw)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", rate_limited.ErrIllegalConfiguration, name, err)
	}

	return v, true, nil
}

package rate_limited

import (
	"fmt"
	"strings"
	"time"
)

// TimeUnit is the unit an Interval amount is expressed in.
type TimeUnit int

const (
	Nanoseconds TimeUnit = iota
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var timeUnits = map[TimeUnit]struct {
	name     string
	duration time.Duration
}{
	Nanoseconds:  {"NANOSECONDS", time.Nanosecond},
	Microseconds: {"MICROSECONDS", time.Microsecond},
	Milliseconds: {"MILLISECONDS", time.Millisecond},
	Seconds:      {"SECONDS", time.Second},
	Minutes:      {"MINUTES", time.Minute},
	Hours:        {"HOURS", time.Hour},
	Days:         {"DAYS", 24 * time.Hour},
}

func (u TimeUnit) String() string {
	if v, ok := timeUnits[u]; ok {
		return v.name
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

func (u TimeUnit) known() bool {
	_, ok := timeUnits[u]
	return ok
}

// ParseTimeUnit parses a unit name such as "SECONDS" or "minutes".
func ParseTimeUnit(s string) (TimeUnit, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for unit, v := range timeUnits {
		if v.name == name {
			return unit, nil
		}
	}
	return 0, fmt.Errorf("unknown time unit %q", s)
}

// Interval is an amount of a TimeUnit. It is compared by value.
type Interval struct {
	Amount int64
	Unit   TimeUnit
}

// IntervalOf returns the interval of amount units.
func IntervalOf(amount int64, unit TimeUnit) Interval {
	return Interval{Amount: amount, Unit: unit}
}

// Duration converts the interval to a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Amount) * timeUnits[i.Unit].duration
}

// Milliseconds returns the interval length in milliseconds.
func (i Interval) Milliseconds() int64 {
	return i.Duration().Milliseconds()
}

func (i Interval) String() string {
	return fmt.Sprintf("%d %s", i.Amount, i.Unit)
}

// RetryPolicy describes how often a denied call is checked again.
// The total number of checks is Count + 1.
type RetryPolicy struct {
	Count    int
	Interval Interval
}

// Attempts returns the total number of checks allowed by the policy.
func (p RetryPolicy) Attempts() int {
	return p.Count + 1
}

// Options is the resolved rate limiting configuration for one guarded call.
// Values are immutable; builder methods return modified copies.
type Options struct {
	ResolvedKey  string
	Blocked      bool
	Enabled      bool
	MaxRequests  int64
	Interval     Interval
	RetryEnabled bool
	Retry        RetryPolicy
}

// DisabledOptions returns options that skip rate limiting for key.
func DisabledOptions(key string) Options {
	return Options{ResolvedKey: key}
}

// EnabledOptions returns options admitting maxRequests per interval for key.
func EnabledOptions(key string, maxRequests int64, interval Interval) Options {
	return Options{
		ResolvedKey: key,
		Enabled:     true,
		MaxRequests: maxRequests,
		Interval:    interval,
	}
}

// BlockedOptions returns options that reject every call for key.
func BlockedOptions(key string) Options {
	return Options{ResolvedKey: key, Blocked: true}
}

// WithRetry returns a copy of o with retries enabled.
func (o Options) WithRetry(count int, interval Interval) Options {
	o.RetryEnabled = true
	o.Retry = RetryPolicy{Count: count, Interval: interval}
	return o
}

// WithBlocked returns a copy of o with the blocked flag set to blocked.
func (o Options) WithBlocked(blocked bool) Options {
	o.Blocked = blocked
	return o
}

// Attempts returns how many checks a guarded call may make.
func (o Options) Attempts() int {
	if o.RetryEnabled {
		return o.Retry.Attempts()
	}
	return 1
}

// Validate reports whether o holds the invariants of an enabled limit.
func (o Options) Validate() error {
	if o.ResolvedKey == "" {
		return fmt.Errorf("%w: resolved key is empty", ErrIllegalConfiguration)
	}
	if !o.Enabled {
		return nil
	}
	if o.MaxRequests < 1 || o.Interval.Amount < 1 {
		return fmt.Errorf("%w: %q max requests and interval must be positive", ErrIllegalConfiguration, o.ResolvedKey)
	}
	if o.RetryEnabled && (o.Retry.Count < 1 || o.Retry.Interval.Amount < 1) {
		return fmt.Errorf("%w: %q retry count and retry interval must be positive", ErrIllegalConfiguration, o.ResolvedKey)
	}
	if !o.Interval.Unit.known() {
		return fmt.Errorf("%w: %q unknown interval unit %v", ErrIllegalConfiguration, o.ResolvedKey, o.Interval.Unit)
	}
	if o.RetryEnabled && !o.Retry.Interval.Unit.known() {
		return fmt.Errorf("%w: %q unknown retry interval unit %v", ErrIllegalConfiguration, o.ResolvedKey, o.Retry.Interval.Unit)
	}
	return nil
}

package rate_limited

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalConfiguration is returned when an enabled limit is missing
	// required settings or carries invalid ones.
	ErrIllegalConfiguration = errors.New("illegal rate limit configuration")

	// ErrAmbiguousOptions is returned when no resolver, or more than one,
	// claims a key.
	ErrAmbiguousOptions = errors.New("ambiguous rate limit options")

	// ErrCallBlocked is returned when configuration blocks a call outright.
	ErrCallBlocked = errors.New("call blocked by configuration")

	// ErrRateLimitExceeded is returned when the quota stays exhausted after
	// every allowed attempt.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrRetryInterrupted is returned when the wait between two attempts is
	// cancelled.
	ErrRetryInterrupted = errors.New("rate limit retry interrupted")

	// ErrMalformedReply is returned by strategies when the store answers
	// with an unexpected shape.
	ErrMalformedReply = errors.New("malformed rate limit store reply")
)

// CallError is the error returned for a guarded call that did not proceed.
type CallError struct {
	// Key is the resolved rate limit key.
	Key string

	// Attempts is the number of checks made before giving up.
	Attempts int

	// Kind is one of ErrCallBlocked, ErrRateLimitExceeded or
	// ErrRetryInterrupted.
	Kind error

	// Cause is the underlying error, if any.
	Cause error

	// Result is the strategy result of the last check, when known.
	Result *Result
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%v for key %q", e.Kind, e.Key)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *CallError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsRateLimitError reports whether err is a decision made by the limiter,
// as opposed to a configuration problem or an error of the guarded call.
func IsRateLimitError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// IsConfigurationError reports whether err comes from invalid or
// ambiguous rate limit configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrIllegalConfiguration) || errors.Is(err, ErrAmbiguousOptions)
}

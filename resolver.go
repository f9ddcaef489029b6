package rate_limited

import (
	"context"
)

// OptionsResolver turns a resolved key and the call it belongs to into
// Options.
type OptionsResolver interface {
	// Resolve returns the options for key. Errors wrap
	// ErrIllegalConfiguration or ErrAmbiguousOptions.
	Resolve(ctx context.Context, key string, call Call) (Options, error)

	// Supports reports whether the resolver holds configuration for key.
	Supports(key string) bool

	// IsDynamic reports whether resolved options may change while the
	// process runs.
	IsDynamic() bool
}

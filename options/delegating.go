package options

import (
	"context"
	"fmt"

	"github.com/aryangodara/rate_limited"
)

var (
	_ rate_limited.OptionsResolver = &DelegatingResolver{}
)

// DelegatingResolver hands a key to the single child resolver supporting
// it. Ambiguity is never settled by order: two or more supporting
// children is an error, and so is none unless missing keys are treated as
// disabled.
type DelegatingResolver struct {
	resolvers              []rate_limited.OptionsResolver
	treatMissingAsDisabled bool
}

// NewDelegatingResolver creates a composite of resolvers.
func NewDelegatingResolver(treatMissingAsDisabled bool, resolvers ...rate_limited.OptionsResolver) *DelegatingResolver {
	return &DelegatingResolver{
		resolvers:              resolvers,
		treatMissingAsDisabled: treatMissingAsDisabled,
	}
}

// IsDynamic returns true; children may be dynamic.
func (d *DelegatingResolver) IsDynamic() bool {
	return true
}

// Supports returns true, the decision is deferred to the children.
func (d *DelegatingResolver) Supports(string) bool {
	return true
}

func (d *DelegatingResolver) Resolve(ctx context.Context, key string, call rate_limited.Call) (rate_limited.Options, error) {
	var selected []rate_limited.OptionsResolver
	for _, r := range d.resolvers {
		if r.Supports(key) {
			selected = append(selected, r)
		}
	}

	switch len(selected) {
	case 0:
		if d.treatMissingAsDisabled {
			return rate_limited.DisabledOptions(key), nil
		}
		return rate_limited.Options{}, fmt.Errorf("%w: no resolver supports key %q", rate_limited.ErrAmbiguousOptions, key)
	case 1:
		return selected[0].Resolve(ctx, key, call)
	default:
		return rate_limited.Options{}, fmt.Errorf("%w: expected a unique resolver for key %q, found %d", rate_limited.ErrAmbiguousOptions, key, len(selected))
	}
}

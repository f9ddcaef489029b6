package options

import (
	"context"
	"testing"

	"github.com/aryangodara/rate_limited"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyResolver_Resolve(t *testing.T) {
	tt := []struct {
		desc   string
		source MapSource
		want   rate_limited.Options
		err    error
	}{
		{
			desc: "enabled with retry",
			source: MapSource{
				"rate.limited.checkout.enabled":             true,
				"rate.limited.checkout.requests":            "5",
				"rate.limited.checkout.interval":            10,
				"rate.limited.checkout.interval.unit":       "SECONDS",
				"rate.limited.checkout.retry.enabled":       "true",
				"rate.limited.checkout.retry.count":         2,
				"rate.limited.checkout.retry.interval":      "1",
				"rate.limited.checkout.retry.interval.unit": "minutes",
			},
			want: rate_limited.EnabledOptions("checkout", 5, rate_limited.IntervalOf(10, rate_limited.Seconds)).
				WithRetry(2, rate_limited.IntervalOf(1, rate_limited.Minutes)),
		},
		{
			desc: "units default to minutes",
			source: MapSource{
				"rate.limited.checkout.enabled":  "true",
				"rate.limited.checkout.requests": 5,
				"rate.limited.checkout.interval": 1,
			},
			want: rate_limited.EnabledOptions("checkout", 5, rate_limited.IntervalOf(1, rate_limited.Minutes)),
		},
		{
			desc: "disabled",
			source: MapSource{
				"rate.limited.checkout.enabled": false,
			},
			want: rate_limited.DisabledOptions("checkout"),
		},
		{
			desc: "blocked",
			source: MapSource{
				"rate.limited.checkout.enabled":  true,
				"rate.limited.checkout.blocked":  true,
				"rate.limited.checkout.requests": 5,
				"rate.limited.checkout.interval": 1,
			},
			want: rate_limited.BlockedOptions("checkout"),
		},
		{
			desc: "blocked without quota",
			source: MapSource{
				"rate.limited.checkout.enabled": true,
				"rate.limited.checkout.blocked": "true",
			},
			want: rate_limited.BlockedOptions("checkout"),
		},
		{
			desc: "blocked while disabled",
			source: MapSource{
				"rate.limited.checkout.enabled": false,
				"rate.limited.checkout.blocked": true,
			},
			want: rate_limited.BlockedOptions("checkout"),
		},
		{
			desc:   "missing enabled",
			source: MapSource{"rate.limited.checkout.requests": 5},
			err:    rate_limited.ErrIllegalConfiguration,
		},
		{
			desc: "missing requests",
			source: MapSource{
				"rate.limited.checkout.enabled":  true,
				"rate.limited.checkout.interval": 1,
			},
			err: rate_limited.ErrIllegalConfiguration,
		},
		{
			desc: "zero interval",
			source: MapSource{
				"rate.limited.checkout.enabled":  true,
				"rate.limited.checkout.requests": 5,
				"rate.limited.checkout.interval": 0,
			},
			err: rate_limited.ErrIllegalConfiguration,
		},
		{
			desc: "unparsable requests",
			source: MapSource{
				"rate.limited.checkout.enabled":  true,
				"rate.limited.checkout.requests": "five",
				"rate.limited.checkout.interval": 1,
			},
			err: rate_limited.ErrIllegalConfiguration,
		},
		{
			desc: "unknown unit",
			source: MapSource{
				"rate.limited.checkout.enabled":       true,
				"rate.limited.checkout.requests":      5,
				"rate.limited.checkout.interval":      1,
				"rate.limited.checkout.interval.unit": "FORTNIGHTS",
			},
			err: rate_limited.ErrIllegalConfiguration,
		},
		{
			desc: "retry enabled without count",
			source: MapSource{
				"rate.limited.checkout.enabled":        true,
				"rate.limited.checkout.requests":       5,
				"rate.limited.checkout.interval":       1,
				"rate.limited.checkout.retry.enabled":  true,
				"rate.limited.checkout.retry.interval": 1,
			},
			err: rate_limited.ErrIllegalConfiguration,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			resolver, err := NewPropertyResolver(ts.source)
			require.NoError(t, err)

			got, err := resolver.Resolve(context.Background(), "checkout", rate_limited.Call{})
			if ts.err != nil {
				assert.ErrorIs(t, err, ts.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, ts.want, got)
		})
	}
}

func TestPropertyResolver_Supports(t *testing.T) {
	resolver, err := NewPropertyResolver(MapSource{
		"limits.checkout.enabled": false,
	}, WithPrefix("limits"))
	require.NoError(t, err)

	assert.True(t, resolver.Supports("checkout"))
	assert.False(t, resolver.Supports("search"))
	assert.False(t, resolver.Supports(""))
	assert.True(t, resolver.IsDynamic())
}

func TestNewPropertyResolver_EmptyPrefix(t *testing.T) {
	_, err := NewPropertyResolver(MapSource{}, WithPrefix(" "))
	assert.ErrorIs(t, err, rate_limited.ErrIllegalConfiguration)
}

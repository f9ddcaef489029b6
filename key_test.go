package rate_limited

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyGenerator_Key(t *testing.T) {
	call := Call{Type: "orders.Service", Method: "Place", Args: []any{"acme", 7}}

	tt := []struct {
		desc       string
		key        string
		expression string
		want       string
		err        error
	}{
		{
			desc: "explicit key is used verbatim",
			key:  "orders",
			want: "orders",
		},
		{
			desc:       "explicit key wins over expression",
			key:        "orders",
			expression: "{{.p0}}",
			want:       "orders",
		},
		{
			desc:       "expression reads arguments",
			expression: "{{.method}}:{{.p0}}:{{.p1}}",
			want:       "Place:acme:7",
		},
		{
			desc:       "expression reads type",
			expression: "{{.type}}",
			want:       "orders.Service",
		},
		{
			desc: "falls back to the call target",
			want: "orders.Service.Place",
		},
		{
			desc:       "unknown variable is illegal",
			expression: "{{.p2}}",
			err:        ErrIllegalConfiguration,
		},
		{
			desc:       "unparsable expression is illegal",
			expression: "{{.p0",
			err:        ErrIllegalConfiguration,
		},
		{
			desc:       "empty result is illegal",
			expression: "{{if false}}x{{end}}",
			err:        ErrIllegalConfiguration,
		},
	}

	g := NewDefaultKeyGenerator()

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			got, err := g.Key(ts.key, ts.expression, call)
			if ts.err != nil {
				assert.ErrorIs(t, err, ts.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ts.want, got)
		})
	}
}

func TestDefaultKeyGenerator_CachesTemplates(t *testing.T) {
	g := NewDefaultKeyGenerator()

	for _, arg := range []string{"a", "b"} {
		got, err := g.Key("", "user:{{.p0}}", Call{Type: "T", Method: "M", Args: []any{arg}})
		require.NoError(t, err)
		assert.Equal(t, "user:"+arg, got)
	}

	_, ok := g.templates.Load("user:{{.p0}}")
	assert.True(t, ok)
}

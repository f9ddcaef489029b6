package rate_limited

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPRateLimiterHandler(t *testing.T) {
	enabled := EnabledOptions("k", 1, IntervalOf(1, Minutes))

	tt := []struct {
		desc     string
		opts     Options
		allow    bool
		wait     WaitFunc
		header   string
		status   int
		state    string
		keyValue string
	}{
		{
			desc:   "admitted request reaches the handler",
			opts:   enabled,
			allow:  true,
			header: "acme",
			status: http.StatusOK,
			state:  "Allow",
		},
		{
			desc:     "exceeded request is rejected",
			opts:     enabled,
			header:   "acme",
			status:   http.StatusTooManyRequests,
			state:    "Deny",
			keyValue: "acme",
		},
		{
			desc:     "blocked request is unavailable",
			opts:     BlockedOptions("k"),
			header:   "acme",
			status:   http.StatusServiceUnavailable,
			state:    "Deny",
			keyValue: "acme",
		},
		{
			desc:     "interrupted retry is unavailable",
			opts:     enabled.WithRetry(1, IntervalOf(1, Seconds)),
			wait:     func(context.Context, time.Duration) error { return context.Canceled },
			header:   "acme",
			status:   http.StatusServiceUnavailable,
			state:    "Deny",
			keyValue: "acme",
		},
		{
			desc:   "invalid configuration is an internal error",
			opts:   EnabledOptions("k", 0, IntervalOf(1, Minutes)),
			header: "acme",
			status: http.StatusInternalServerError,
		},
		{
			desc:   "missing header is a bad request",
			opts:   enabled,
			allow:  true,
			status: http.StatusBadRequest,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			wait := ts.wait
			if wait == nil {
				wait = noWait
			}

			registry := NewRegistry().Limit(HTTPType, RateLimited{KeyExpression: "{{.p0}}"})
			advice := NewAdvice(fixedOptions(ts.opts), &scriptedChecker{decisions: []bool{ts.allow}},
				WithRegistry(registry),
				WithWait(wait))

			handler := NewHTTPRateLimiterHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			}), &HTTPConfig{
				Advice:    advice,
				Name:      "orders",
				Extractor: NewHttpHeaderExtractor("X-Client-ID"),
			})

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if ts.header != "" {
				req.Header.Set("X-Client-ID", ts.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, ts.status, rec.Code)
			assert.Equal(t, ts.state, rec.Header().Get(rateLimitingState))
			assert.Equal(t, ts.keyValue, rec.Header().Get(rateLimitingKey))
		})
	}
}

func TestMiddleware_CallShape(t *testing.T) {
	var got Call
	resolver := resolverFunc(func(_ context.Context, _ string, call Call) (Options, error) {
		got = call
		return DisabledOptions("k"), nil
	})

	handler := Middleware(&HTTPConfig{
		Advice:    NewAdvice(resolver, &scriptedChecker{decisions: []bool{true}}),
		Extractor: NewHttpHeaderExtractor("X-Client-ID", "X-Region"),
	})(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/payments", nil)
	req.Header.Set("X-Client-ID", "acme")
	req.Header.Set("X-Region", "eu")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, Call{Type: HTTPType, Method: "/payments", Args: []any{"acme-eu", http.MethodPost, "/payments"}}, got)
}

func TestHTTPRateLimiterHandler_ResultHeaders(t *testing.T) {
	expiresAt := time.Date(2024, time.June, 23, 10, 16, 30, 0, time.UTC)

	tt := []struct {
		desc   string
		result *Result
		status int
		total  string
	}{
		{
			desc:   "admitted request carries its count",
			result: &Result{State: Allow, TotalRequests: 3, ExpiresAt: expiresAt},
			status: http.StatusOK,
			total:  "3",
		},
		{
			desc:   "denied request carries the window",
			result: &Result{State: Deny, TotalRequests: 5, ExpiresAt: expiresAt},
			status: http.StatusTooManyRequests,
			total:  "5",
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			checker := NewStrategyChecker(strategyFunc(func(context.Context, *Request) (*Result, error) {
				return ts.result, nil
			}), nil)
			advice := NewAdvice(fixedOptions(EnabledOptions("k", 5, IntervalOf(1, Minutes))), checker)

			handler := Middleware(&HTTPConfig{Advice: advice})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

			assert.Equal(t, ts.status, rec.Code)
			assert.Equal(t, ts.total, rec.Header().Get(rateLimitingTotalRequests))
			assert.Equal(t, "2024-06-23T10:16:30Z", rec.Header().Get(rateLimitingExpiresAt))
		})
	}
}

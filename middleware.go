package rate_limited

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	_ http.Handler = &httpRateLimiterHandler{}
	_ Extractor    = &httpHeaderExtractor{}
)

const (
	rateLimitingTotalRequests = "Rate-limiting-Total-Requests"
	rateLimitingState         = "Rate-Limiting-State"
	rateLimitingExpiresAt     = "Rate-Limiting-Expires-At"
	rateLimitingKey           = "Rate-Limiting-Key"

	// HTTPType is the Call.Type of requests guarded by the HTTP handler.
	HTTPType = "http"
)

// Extractor extracts a key from an HTTP request for rate limiting.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// Extract extracts values from HTTP headers to build the key.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for a header we should return an error
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
	}

	return strings.Join(values, "-"), nil
}

// NewHttpHeaderExtractor creates a new Extractor.
func NewHttpHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

// HTTPConfig configures the HTTP rate limiting handler.
//
// Each request is guarded as Call{Type: HTTPType, Method: Name, Args:
// [extracted, method, path]}, so a registry declaration or property key can
// use "{{.p0}}" to limit per client.
type HTTPConfig struct {
	Advice *Advice

	// Name is the Call.Method of guarded requests. It defaults to the
	// request path.
	Name string

	// Extractor is optional; without it p0 is empty.
	Extractor Extractor

	Logger *zap.Logger
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *HTTPConfig
	logger  *zap.Logger
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler and performs rate limiting before forwarding the
// request to the API
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *HTTPConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
		logger:  logger.Named("http"),
	}
}

// Middleware returns NewHTTPRateLimiterHandler as a router middleware.
func Middleware(config *HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHTTPRateLimiterHandler(next, config)
	}
}

// ServeHTTP performs rate limiting and forwards the request if allowed.
func (h *httpRateLimiterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var extracted string
	if h.config.Extractor != nil {
		value, err := h.config.Extractor.Extract(r)
		if err != nil {
			h.writeResponse(w, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
			return
		}
		extracted = value
	}

	name := h.config.Name
	if name == "" {
		name = r.URL.Path
	}

	call := Call{
		Type:   HTTPType,
		Method: name,
		Args:   []any{extracted, r.Method, r.URL.Path},
	}

	result, err := h.config.Advice.AdmitResult(r.Context(), call)
	if err == nil {
		w.Header().Set(rateLimitingState, Allow.String())
		setResultHeaders(w, result)
		h.handler.ServeHTTP(w, r)
		return
	}

	var ce *CallError
	if errors.As(err, &ce) {
		w.Header().Set(rateLimitingState, Deny.String())
		w.Header().Set(rateLimitingKey, ce.Key)
		setResultHeaders(w, ce.Result)
	}

	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		h.writeResponse(w, http.StatusTooManyRequests, "you have sent too many requests to this service, slow down please")
	case errors.Is(err, ErrCallBlocked):
		h.writeResponse(w, http.StatusServiceUnavailable, "this operation is currently blocked")
	case errors.Is(err, ErrRetryInterrupted):
		h.writeResponse(w, http.StatusServiceUnavailable, "request was cancelled while waiting for rate limit")
	default:
		h.logger.Error("failed to run rate limiting for request", zap.String("path", r.URL.Path), zap.Error(err))
		h.writeResponse(w, http.StatusInternalServerError, "failed to run rate limiting for request")
	}
}

func setResultHeaders(w http.ResponseWriter, result *Result) {
	if result == nil {
		return
	}
	w.Header().Set(rateLimitingTotalRequests, strconv.FormatInt(result.TotalRequests, 10))
	w.Header().Set(rateLimitingExpiresAt, result.ExpiresAt.Format(time.RFC3339))
}

func (h *httpRateLimiterHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...any) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := fmt.Fprintf(w, msg, args...); err != nil {
		h.logger.Warn("failed to write body to HTTP request", zap.Error(err))
	}
}

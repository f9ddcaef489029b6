package rate_limited

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/aryangodara/rate_limited"

// Outcomes recorded on the span of a guarded call.
const (
	OutcomeBlocked          = "blocked"
	OutcomeDisabled         = "disabled"
	OutcomeAdmitted         = "admitted"
	OutcomeExceeded         = "exceeded"
	OutcomeRetryInterrupted = "retry_interrupted"
	OutcomeError            = "error"
)

type (
	// Option configures an Advice during initialization.
	Option func(a *Advice)

	// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	WaitFunc func(ctx context.Context, d time.Duration) error

	// Advice decides, for every guarded call, whether it proceeds. It
	// resolves the key and options of the call, consults the RateChecker
	// with the configured retry policy and reports each decision to
	// Analytics.
	//
	// An Advice holds no per-call state and is safe for concurrent use;
	// the shared store is the only serialization point between callers.
	Advice struct {
		registry  *Registry
		keys      KeyGenerator
		resolver  OptionsResolver
		checker   RateChecker
		analytics Analytics
		logger    *zap.Logger
		tracer    trace.Tracer
		wait      WaitFunc
	}

	// Operation is a guarded unit of work.
	Operation func(ctx context.Context) error
)

// WithRegistry sets the call site declarations used to find the explicit
// key and key expression of a call.
func WithRegistry(r *Registry) Option {
	return func(a *Advice) {
		a.registry = r
	}
}

// WithKeyGenerator replaces the DefaultKeyGenerator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(a *Advice) {
		a.keys = g
	}
}

// WithAnalytics sets the sink receiving decision events.
func WithAnalytics(an Analytics) Option {
	return func(a *Advice) {
		a.analytics = an
	}
}

// WithLogger sets a custom logger for the advice.
func WithLogger(l *zap.Logger) Option {
	return func(a *Advice) {
		a.logger = l.Named("rate_limited")
	}
}

// WithTracerProvider configures OpenTelemetry tracing with the provided
// tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Advice) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// WithWait replaces the function used to wait between two attempts.
func WithWait(w WaitFunc) Option {
	return func(a *Advice) {
		a.wait = w
	}
}

// NewAdvice creates an Advice resolving options with resolver and
// checking quotas with checker.
func NewAdvice(resolver OptionsResolver, checker RateChecker, options ...Option) *Advice {
	a := &Advice{
		registry:  NewRegistry(),
		keys:      NewDefaultKeyGenerator(),
		resolver:  resolver,
		checker:   checker,
		analytics: NopAnalytics{},
		logger:    zap.NewNop(),
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		wait:      Sleep,
	}

	for _, o := range options {
		o(a)
	}

	return a
}

// Sleep is the default WaitFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Guard runs op if call is admitted.
func (a *Advice) Guard(ctx context.Context, call Call, op Operation) error {
	if err := a.Admit(ctx, call); err != nil {
		return err
	}

	return op(ctx)
}

// Wrap returns op guarded for call.
func (a *Advice) Wrap(call Call, op Operation) Operation {
	return func(ctx context.Context) error {
		return a.Guard(ctx, call, op)
	}
}

// Invoke runs op if call is admitted and returns its result.
func Invoke[T any](ctx context.Context, a *Advice, call Call, op func(ctx context.Context) (T, error)) (T, error) {
	if err := a.Admit(ctx, call); err != nil {
		var zero T
		return zero, err
	}

	return op(ctx)
}

// Admit decides whether call may proceed. It returns nil when the call is
// admitted or rate limiting is disabled for it, a *CallError when the call
// is blocked, exceeded its quota or was interrupted while retrying, and a
// configuration error when the key or options cannot be resolved.
func (a *Advice) Admit(ctx context.Context, call Call) error {
	_, err := a.AdmitResult(ctx, call)
	return err
}

// AdmitResult is Admit also returning the strategy result of the last
// check. The result is nil when no check was made or the checker is not a
// ResultChecker.
func (a *Advice) AdmitResult(ctx context.Context, call Call) (*Result, error) {
	ctx, span := a.tracer.Start(
		ctx,
		"rate_limited.Guard",
		trace.WithAttributes(
			attribute.String("ratelimit.type", call.Type),
			attribute.String("ratelimit.method", call.Method),
		),
	)
	defer span.End()

	outcome, attempts, result, err := a.admit(ctx, call)

	span.SetAttributes(
		attribute.String("ratelimit.outcome", outcome),
		attribute.Int("ratelimit.attempts", attempts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	return result, err
}

func (a *Advice) admit(ctx context.Context, call Call) (string, int, *Result, error) {
	logger := a.logger.With(
		zap.String("type", call.Type),
		zap.String("method", call.Method),
	)
	logger.Debug("attempting to execute rate limited call")

	decl, _ := a.registry.FindLimit(call)

	key, err := a.keys.Key(decl.Key, decl.KeyExpression, call)
	if err != nil {
		return OutcomeError, 0, nil, fmt.Errorf("cannot generate rate limit key: %w", err)
	}
	if key == "" {
		return OutcomeError, 0, nil, fmt.Errorf("%w: key generator returned an empty key", ErrIllegalConfiguration)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("ratelimit.key", key))
	logger = logger.With(zap.String("key", key))

	opts, err := a.resolver.Resolve(ctx, key, call)
	if err != nil {
		return OutcomeError, 0, nil, fmt.Errorf("cannot resolve rate limit options for %q: %w", key, err)
	}

	// blocked wins over any quota, valid or not
	if opts.Blocked {
		logger.Info("rate limited call is blocked")
		a.emit(logger, func() { a.analytics.Blocked(ctx, call, opts, key) })
		return OutcomeBlocked, 0, nil, &CallError{Key: key, Kind: ErrCallBlocked}
	}

	if err := opts.Validate(); err != nil {
		return OutcomeError, 0, nil, err
	}

	if !opts.Enabled {
		logger.Info("rate limiting is disabled for call")
		a.emit(logger, func() { a.analytics.Disabled(ctx, call, opts, key) })
		return OutcomeDisabled, 0, nil, nil
	}

	allowed := opts.Attempts()
	for attempt := 1; ; attempt++ {
		admitted, result := a.check(ctx, opts)
		if admitted {
			a.emit(logger, func() { a.analytics.Succeeded(ctx, call, opts, key, attempt) })
			return OutcomeAdmitted, attempt, result, nil
		}

		if attempt >= allowed {
			logger.Warn("rate limit exceeded", zap.Int("attempts", attempt))
			a.emit(logger, func() { a.analytics.Exceeded(ctx, call, opts, key, attempt) })
			return OutcomeExceeded, attempt, result, &CallError{Key: key, Attempts: attempt, Kind: ErrRateLimitExceeded, Result: result}
		}

		logger.Debug("rate limit exceeded, retrying",
			zap.Int("attempt", attempt),
			zap.Int("attempts", allowed),
			zap.Duration("retry_interval", opts.Retry.Interval.Duration()))

		if err := a.wait(ctx, opts.Retry.Interval.Duration()); err != nil {
			logger.Error("rate limited call retry was interrupted", zap.Int("attempt", attempt), zap.Error(err))
			a.emit(logger, func() { a.analytics.RetryInterrupted(ctx, call, opts, key) })
			return OutcomeRetryInterrupted, attempt, result, &CallError{Key: key, Attempts: attempt, Kind: ErrRetryInterrupted, Cause: err, Result: result}
		}
	}
}

func (a *Advice) check(ctx context.Context, opts Options) (bool, *Result) {
	if rc, ok := a.checker.(ResultChecker); ok {
		result := rc.CheckResult(ctx, opts.ResolvedKey, opts.MaxRequests, opts.Interval)
		return result != nil && result.State == Allow, result
	}

	return a.checker.Check(ctx, opts.ResolvedKey, opts.MaxRequests, opts.Interval), nil
}

func (a *Advice) emit(logger *zap.Logger, event func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("rate limit analytics panicked", zap.Any("panic", r))
		}
	}()

	event()
}

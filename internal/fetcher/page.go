package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/pkg/patientapi"
)

// Option configures a PageFetcher.
type Option func(*PageFetcher)

// WithSleep replaces the wait between attempts (for testing).
func WithSleep(fn resilience.SleepFunc) Option {
	return func(f *PageFetcher) {
		f.sleep = fn
	}
}

// WithObserver registers an attempt observer.
func WithObserver(o Observer) Option {
	return func(f *PageFetcher) {
		f.observer = o
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *zap.Logger) Option {
	return func(f *PageFetcher) {
		f.log = log
	}
}

// PageFetcher fetches a single page, retrying every failure class with the
// delay its Policy assigns, up to Policy.MaxAttempts attempts.
type PageFetcher struct {
	lister   Lister
	policy   resilience.Policy
	sleep    resilience.SleepFunc
	observer Observer
	log      *zap.Logger
}

// New creates a PageFetcher.
func New(lister Lister, policy resilience.Policy, opts ...Option) *PageFetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = resilience.DefaultPolicy().MaxAttempts
	}
	f := &PageFetcher{
		lister: lister,
		policy: policy,
		sleep:  resilience.Sleep,
		log:    zap.L(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchPage returns a validated page, or false once every attempt has failed
// or ctx is done. Failures are never returned as errors.
func (f *PageFetcher) FetchPage(ctx context.Context, page, limit int) (*model.Page, bool) {
	onRetry := resilience.RetryLogger(f.log)

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		result, err := f.lister.ListPatients(ctx, page, limit)
		outcome := OutcomeOf(err)
		class := resilience.Classify(outcome)

		if !class.Retryable() {
			f.observe(page, attempt, class, 0)
			return result, true
		}

		if ctx.Err() != nil {
			return nil, false
		}

		delay := f.policy.Delay(class, attempt)
		f.observe(page, attempt, class, delay)
		onRetry(page, attempt, outcome, class, delay)

		if err := f.sleep(ctx, delay); err != nil {
			return nil, false
		}
	}

	return nil, false
}

func (f *PageFetcher) observe(page, attempt int, class resilience.Class, delay time.Duration) {
	if f.observer != nil {
		f.observer.ObserveAttempt(page, attempt, class, delay)
	}
}

// OutcomeOf maps a ListPatients error to a classifier outcome.
func OutcomeOf(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{StatusCode: http.StatusOK}
	}

	var statusErr *patientapi.StatusError
	if errors.As(err, &statusErr) {
		return resilience.Outcome{StatusCode: statusErr.StatusCode}
	}

	var schemaErr *patientapi.SchemaError
	if errors.As(err, &schemaErr) {
		return resilience.Outcome{StatusCode: http.StatusOK, Malformed: true}
	}

	return resilience.Outcome{Err: err}
}

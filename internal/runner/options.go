package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pinba/internal/logx"
)

// Requester abstracts executing a single operation.
// Implementations should return an error for failed operations.
type Requester interface {
	Do(ctx context.Context) error
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Do(ctx context.Context) error { return f(ctx) }

// Options configure the Runner.
type Options struct {
	Concurrency    int                         // number of worker goroutines
	TotalRequests  int                         // total operations to execute (0 means unlimited until duration/end)
	Duration       time.Duration               // overall time limit (0 means no duration cap)
	RatePerSecond  int                         // operations per second pacing (0 means unlimited)
	Requester      Requester                   // operation executor (required)
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

type loggingRequester struct {
	inner Requester
	log   logx.Logger
}

// WithLogging wraps a Requester to log failures at debug level.
func WithLogging(req Requester, log logx.Logger) Requester {
	if log == nil {
		return req
	}
	return &loggingRequester{inner: req, log: log}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil {
		l.log.Debugf("operation failed: %v", err)
	}
	return err
}

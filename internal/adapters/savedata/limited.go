package savedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/pkg/logger"
	"github.com/okian/rks/pkg/metrics"
)

// Defaults for Limited.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 5.0
	DefaultBurst   = 5
)

// Limited bounds another Provider: calls are throttled by a shared token
// bucket and abandoned after a timeout. Every failure it returns wraps
// ErrFetch.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
	timeout time.Duration
	logger  logger.Logger
}

// Option applies a configuration option to Limited.
type Option func(*Limited)

// WithTimeout bounds each fetch, including the wait for a token.
func WithTimeout(d time.Duration) Option {
	return func(l *Limited) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithRate sets the sustained fetch rate and burst. perSecond <= 0 disables
// throttling.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limited) {
		if burst < 1 {
			burst = 1
		}
		if perSecond <= 0 {
			l.limiter = rate.NewLimiter(rate.Inf, burst)
			return
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Limited) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLimited wraps next.
func NewLimited(next Provider, opts ...Option) *Limited {
	l := &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), DefaultBurst),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("savedata")
	}
	return l
}

type fetchResult struct {
	set model.SaveSet
	err error
}

// Fetch implements Provider. It returns once the timeout passes even if the
// wrapped provider ignores cancellation.
func (l *Limited) Fetch(ctx context.Context, identity string) (model.SaveSet, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	start := time.Now()

	if err := l.limiter.Wait(ctx); err != nil {
		_ = metrics.RecordRemoteFetch(metrics.OutcomeThrottled, msSince(start))
		l.logger.Warn(ctx, "save fetch throttled", logger.Identity(identity), logger.Error(err))
		return model.SaveSet{}, fmt.Errorf("%w: throttled: %w", ErrFetch, err)
	}

	done := make(chan fetchResult, 1)
	go func() {
		set, err := l.next.Fetch(ctx, identity)
		done <- fetchResult{set: set, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			outcome := metrics.OutcomeError
			if errors.Is(res.err, context.DeadlineExceeded) {
				outcome = metrics.OutcomeTimeout
			}
			_ = metrics.RecordRemoteFetch(outcome, msSince(start))
			return model.SaveSet{}, fmt.Errorf("%w: %w", ErrFetch, res.err)
		}
		_ = metrics.RecordRemoteFetch(metrics.OutcomeOK, msSince(start))
		return res.set, nil
	case <-ctx.Done():
		_ = metrics.RecordRemoteFetch(metrics.OutcomeTimeout, msSince(start))
		l.logger.Warn(ctx, "save fetch timed out", logger.Identity(identity), logger.Duration("timeout", l.timeout))
		return model.SaveSet{}, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

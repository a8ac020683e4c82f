package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"TriggerBot/internal/model"
)

// GuardOptions tune a Guarded exchange.
type GuardOptions struct {
	RequestsPerSecond float64
	Burst             int
	MaxTries          uint          // attempts per read, including the first
	InitialBackoff    time.Duration // first retry delay
	MaxBackoff        time.Duration
}

// DefaultGuardOptions are conservative enough for public REST endpoints.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		RequestsPerSecond: 5,
		Burst:             2,
		MaxTries:          3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
	}
}

// Guarded rate-limits every call to the wrapped exchange and retries reads with exponential
// backoff. Orders are never retried: a timed-out order may still have executed.
type Guarded struct {
	inner   Exchange
	limiter *rate.Limiter
	opts    GuardOptions
	log     *zap.Logger
}

// NewGuarded wraps inner with rate limiting and read retries.
func NewGuarded(inner Exchange, opts GuardOptions, log *zap.Logger) *Guarded {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(limit, opts.Burst),
		opts:    opts,
		log:     log,
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) FetchLatestPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	price, err := retryRead(ctx, g, "price", func() (decimal.Decimal, error) {
		return g.inner.FetchLatestPrice(ctx, pair)
	})
	if err != nil && !errors.Is(err, ErrPriceUnavailable) {
		err = fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	return price, err
}

func (g *Guarded) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return retryRead(ctx, g, "balance", func() (decimal.Decimal, error) {
		return g.inner.FetchBalance(ctx, asset)
	})
}

func (g *Guarded) FetchDailyBars(ctx context.Context, pair string, days int) ([]model.OHLCV, error) {
	return retryRead(ctx, g, "daily_bars", func() ([]model.OHLCV, error) {
		return g.inner.FetchDailyBars(ctx, pair, days)
	})
}

func (g *Guarded) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return g.inner.PlaceOrder(ctx, req)
}

func (g *Guarded) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if g.opts.InitialBackoff > 0 {
		b.InitialInterval = g.opts.InitialBackoff
	}
	if g.opts.MaxBackoff > 0 {
		b.MaxInterval = g.opts.MaxBackoff
	}
	return b
}

func retryRead[T any](ctx context.Context, g *Guarded, what string, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, backoff.Permanent(fmt.Errorf("rate limit: %w", err))
		}
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		g.log.Warn("exchange read failed, retrying",
			zap.String("exchange", g.inner.Name()),
			zap.String("call", what),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(g.opts.MaxTries),
		backoff.WithNotify(notify))
}

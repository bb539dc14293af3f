package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pixwallet/config"
	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var one = decimal.NewFromInt(1)

// RateOracle implements ports.RateService with a single-slot cache of the
// upstream USDT/BRL price. A failed refresh falls back to the last good
// price, however old, and upstream is not retried for retryBackoff.
type RateOracle struct {
	source       ports.MarketDataSource
	ttl          time.Duration
	retryBackoff time.Duration
	fee          decimal.Decimal
	minNotional  decimal.Decimal
	now          func() time.Time
	metrics      *Metrics
	log          zerolog.Logger

	fetches singleflight.Group

	mu          sync.Mutex
	cached      *domain.RateSnapshot
	lastFailure time.Time
}

// NewRateOracle creates a rate oracle over source.
func NewRateOracle(source ports.MarketDataSource, cfg config.RateConfig, metrics *Metrics, log zerolog.Logger) *RateOracle {
	return &RateOracle{
		source:       source,
		ttl:          cfg.TTL,
		retryBackoff: cfg.RetryBackoff,
		fee:          cfg.FeePercent,
		minNotional:  cfg.MinimumNotional,
		now:          time.Now,
		metrics:      metrics,
		log:          log,
	}
}

// WithClock replaces the time source. Used by tests to age the cache.
func (o *RateOracle) WithClock(now func() time.Time) *RateOracle {
	o.now = now
	return o
}

// GetBaseRate returns the cached price while it is younger than the TTL and
// refreshes it otherwise.
func (o *RateOracle) GetBaseRate(ctx context.Context) (*domain.RateSnapshot, error) {
	snap, _, err := o.baseRate(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// snapshot reads the cache. fresh is true when it is within the TTL,
// backingOff when the last refresh failed less than retryBackoff ago.
func (o *RateOracle) snapshot() (cached *domain.RateSnapshot, fresh, backingOff bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.cached != nil {
		cp := *o.cached
		cached = &cp
		fresh = now.Sub(cp.FetchedAt) < o.ttl
	}
	backingOff = !o.lastFailure.IsZero() && now.Sub(o.lastFailure) < o.retryBackoff
	return cached, fresh, backingOff
}

// baseRate also reports whether the returned snapshot is a stale fallback.
// Concurrent misses share one upstream call; the lock is never held across it.
func (o *RateOracle) baseRate(ctx context.Context) (domain.RateSnapshot, bool, error) {
	cached, fresh, backingOff := o.snapshot()
	if fresh {
		o.metrics.RateFetches.WithLabelValues("hit").Inc()
		return *cached, false, nil
	}

	var fetchErr error
	if backingOff {
		fetchErr = errRateBackoff
	} else {
		// The shared fetch must not fail for every waiter when the caller
		// that started it goes away.
		v, err, _ := o.fetches.Do("price", func() (interface{}, error) {
			return o.refresh(context.WithoutCancel(ctx))
		})
		if err == nil {
			return v.(domain.RateSnapshot), false, nil
		}
		fetchErr = err
		cached, _, _ = o.snapshot()
	}

	if cached != nil {
		o.metrics.RateFetches.WithLabelValues("stale").Inc()
		o.log.Warn().Err(fetchErr).
			Time("fetched_at", cached.FetchedAt).
			Str("price", cached.Price.String()).
			Msg("rate refresh failed, serving last known price")
		return *cached, true, nil
	}

	o.metrics.RateFetches.WithLabelValues("unavailable").Inc()
	return domain.RateSnapshot{}, false, apperror.ErrRateUnavailable(fetchErr)
}

var errRateBackoff = errors.New("upstream rate source failed recently")

// refresh fetches the price unless another caller refreshed it, or failed
// to, in the meantime.
func (o *RateOracle) refresh(ctx context.Context) (domain.RateSnapshot, error) {
	cached, fresh, backingOff := o.snapshot()
	if fresh {
		o.metrics.RateFetches.WithLabelValues("hit").Inc()
		return *cached, nil
	}
	if backingOff {
		return domain.RateSnapshot{}, errRateBackoff
	}

	price, err := o.source.FetchPrice(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.lastFailure = o.now()
		return domain.RateSnapshot{}, err
	}
	o.cached = &domain.RateSnapshot{Price: price, FetchedAt: o.now()}
	o.lastFailure = time.Time{}
	o.metrics.RateFetches.WithLabelValues("refresh").Inc()
	return *o.cached, nil
}

// GetRates returns the base price with the fee spread applied on both sides.
func (o *RateOracle) GetRates(ctx context.Context) (*domain.Rates, error) {
	snap, stale, err := o.baseRate(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Rates{
		Base:            snap.Price,
		Buy:             snap.Price.Mul(one.Add(o.fee)).Round(domain.QuotePlaces),
		Sell:            snap.Price.Mul(one.Sub(o.fee)).Round(domain.QuotePlaces),
		FeePercent:      o.fee,
		MinimumNotional: o.minNotional,
		UpdatedAt:       snap.FetchedAt,
		Stale:           stale,
	}, nil
}

// Quote prices converting amount of from into to. The fee is taken from the
// received side and the result is truncated, never rounded up.
func (o *RateOracle) Quote(ctx context.Context, from, to domain.Currency, amount decimal.Decimal) (*domain.Quote, error) {
	if !from.IsSupported() {
		return nil, apperror.ErrUnsupportedCurrency(string(from))
	}
	if !to.IsSupported() {
		return nil, apperror.ErrUnsupportedCurrency(string(to))
	}
	if from == to {
		return nil, apperror.Validation("from and to currencies must differ")
	}
	if err := validateClientAmount(from, amount, decimal.Zero); err != nil {
		return nil, err
	}

	snap, _, err := o.baseRate(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Price.IsPositive() {
		return nil, apperror.ErrRateUnavailable(fmt.Errorf("non-positive base rate %s", snap.Price))
	}

	keep := one.Sub(o.fee)
	var received, usdtSide decimal.Decimal
	switch {
	case from == domain.CurrencyBRL && to == domain.CurrencyUSDT:
		received = amount.Div(snap.Price).Mul(keep).Truncate(to.Places())
		usdtSide = received
	case from == domain.CurrencyUSDT && to == domain.CurrencyBRL:
		received = amount.Mul(snap.Price).Mul(keep).Truncate(to.Places())
		usdtSide = amount
	default:
		return nil, apperror.Validation(fmt.Sprintf("unsupported pair %s/%s", from, to))
	}

	if usdtSide.LessThan(o.minNotional) {
		return nil, apperror.Validation(fmt.Sprintf("exchange is below the minimum of %s USDT", o.minNotional))
	}
	if !received.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	return &domain.Quote{
		From:       from,
		To:         to,
		FromAmount: amount,
		ToAmount:   received,
		Rate:       snap.Price,
		FeePercent: o.fee,
	}, nil
}

package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// TieredOracle answers price requests from two sources, a cache and the
// price history.
//
// Matching asks with forTransaction=true and always gets a fresh price
// from the realtime source. Everything else is served from the cache while
// the entry is younger than the TTL, then from the delayed source, then
// from the realtime source, and finally from the last historical close.
// Any successful fetch refreshes the cache and is archived.
type TieredOracle struct {
	realtime Source
	delayed  Source
	history  *History
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// NewTieredOracle creates a TieredOracle. delayed may be nil, in which
// case cache misses go straight to the realtime source. history may be nil
// to disable archiving and the historical fallback.
func NewTieredOracle(realtime, delayed Source, ttl time.Duration, history *History) *TieredOracle {
	return &TieredOracle{
		realtime: realtime,
		delayed:  delayed,
		history:  history,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cachedPrice),
	}
}

// Price returns the price of ticker in dollars, exactly as quoted.
func (o *TieredOracle) Price(ctx context.Context, ticker string, forTransaction bool) (decimal.Decimal, error) {
	if forTransaction {
		return o.fetch(ctx, o.realtime, "realtime", ticker, true)
	}

	if p, ok := o.cached(ticker); ok {
		return p, nil
	}

	var errs []error
	if o.delayed != nil {
		p, err := o.fetch(ctx, o.delayed, "delayed", ticker, false)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			return decimal.Zero, errors.Join(errs...)
		}
	}
	p, err := o.fetch(ctx, o.realtime, "realtime", ticker, false)
	if err == nil {
		return p, nil
	}
	errs = append(errs, err)

	if o.history != nil && ctx.Err() == nil {
		p, err := o.history.LastClose(ctx, ticker, o.now())
		if err == nil {
			o.store(ticker, p)
			return p, nil
		}
		errs = append(errs, err)
	}
	return decimal.Zero, errors.Join(errs...)
}

func (o *TieredOracle) fetch(ctx context.Context, src Source, name, ticker string, forTransaction bool) (decimal.Decimal, error) {
	p, err := src.Fetch(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	o.store(ticker, p)
	if o.history != nil {
		o.history.Record(ctx, ticker, p, name, forTransaction, o.now())
	}
	return p, nil
}

func (o *TieredOracle) store(ticker string, p decimal.Decimal) {
	o.mu.Lock()
	o.cache[ticker] = cachedPrice{price: p, fetchedAt: o.now()}
	o.mu.Unlock()
}

func (o *TieredOracle) cached(ticker string) (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.cache[ticker]
	if !ok || o.now().Sub(c.fetchedAt) >= o.ttl {
		return decimal.Zero, false
	}
	return c.price, true
}

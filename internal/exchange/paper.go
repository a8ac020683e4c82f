package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

// Paper is a simulated exchange for dry runs and tests. Prices come from a live feed when one
// is set, otherwise from SetPrice/QueuePrices. Orders fill immediately at the current price.
type Paper struct {
	mu       sync.Mutex
	feed     MarketData
	price    decimal.Decimal
	queue    []decimal.Decimal
	priceErr error
	feeRate  decimal.Decimal
	balances map[string]decimal.Decimal
	bars     []model.OHLCV

	nextErr       error
	nextMalformed bool
	onPlace       func(model.OrderRequest)
	orders        []model.OrderRequest
}

// NewPaper returns a paper exchange quoting price. feed may be nil.
func NewPaper(price decimal.Decimal, feed MarketData) *Paper {
	return &Paper{
		price:    price,
		feed:     feed,
		balances: make(map[string]decimal.Decimal),
	}
}

func (p *Paper) Name() string { return "paper" }

// SetPrice fixes the quoted price and clears any queued prices or price error.
func (p *Paper) SetPrice(price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price, p.queue, p.priceErr = price, nil, nil
}

// QueuePrices makes the next fetches return prices in order; the last one then sticks.
func (p *Paper) QueuePrices(prices ...decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, prices...)
}

// SetPriceError makes every price fetch fail with err until cleared with nil.
func (p *Paper) SetPriceError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceErr = err
}

// SetFeeRate sets the taker fee subtracted from sell proceeds.
func (p *Paper) SetFeeRate(rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeRate = rate
}

// SetBalance sets the simulated free balance of asset.
func (p *Paper) SetBalance(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = amount
}

// SetDailyBars overrides the generated candles.
func (p *Paper) SetDailyBars(bars []model.OHLCV) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars = bars
}

// FailNextOrder makes the next PlaceOrder return err.
func (p *Paper) FailNextOrder(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextErr = err
}

// MalformNextOrder makes the next PlaceOrder succeed without an order ID.
func (p *Paper) MalformNextOrder() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMalformed = true
}

// OnPlace installs a hook run before each order is filled.
func (p *Paper) OnPlace(fn func(model.OrderRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPlace = fn
}

// Orders returns the orders received so far.
func (p *Paper) Orders() []model.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.OrderRequest(nil), p.orders...)
}

func (p *Paper) FetchLatestPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	p.mu.Lock()
	if p.priceErr != nil {
		err := p.priceErr
		p.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if len(p.queue) > 0 {
		p.price = p.queue[0]
		p.queue = p.queue[1:]
	}
	feed := p.feed
	p.mu.Unlock()

	if feed != nil {
		price, err := feed.FetchLatestPrice(ctx, pair)
		if err != nil {
			return decimal.Zero, err
		}
		p.mu.Lock()
		p.price = price
		p.mu.Unlock()
		return price, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: paper price not set", ErrPriceUnavailable)
	}
	return p.price, nil
}

func (p *Paper) FetchBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *Paper) PlaceOrder(_ context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	p.mu.Lock()
	hook := p.onPlace
	p.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, req)

	if err := p.nextErr; err != nil {
		p.nextErr = nil
		return nil, err
	}
	if p.nextMalformed {
		p.nextMalformed = false
		return &model.OrderResult{}, nil
	}
	if !req.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive quantity %s", ErrOrderRejected, req.Qty)
	}

	price := p.price
	if req.Type == model.OrderTypeLimit && req.Price.IsPositive() {
		price = req.Price
	}
	cost := req.Qty.Mul(price)

	if base, quote, err := SplitPair(req.Pair); err == nil {
		switch req.Side {
		case model.SideBuy:
			p.balances[base] = p.balances[base].Add(req.Qty)
			p.balances[quote] = p.balances[quote].Sub(cost)
		case model.SideSell:
			p.balances[base] = p.balances[base].Sub(req.Qty)
			p.balances[quote] = p.balances[quote].Add(cost.Sub(cost.Mul(p.feeRate)))
		}
	}

	return &model.OrderResult{
		ID:        "paper-" + uuid.NewString(),
		FilledQty: req.Qty,
		Cost:      cost,
		AvgPrice:  price,
	}, nil
}

// FetchDailyBars returns the configured candles, the feed's candles, or a gentle synthetic
// series around the current price.
func (p *Paper) FetchDailyBars(ctx context.Context, pair string, days int) ([]model.OHLCV, error) {
	p.mu.Lock()
	bars, feed, price := p.bars, p.feed, p.price
	p.mu.Unlock()

	if bars != nil {
		return bars, nil
	}
	if feed != nil {
		return feed.FetchDailyBars(ctx, pair, days)
	}
	return syntheticBars(price.InexactFloat64(), days), nil
}

func syntheticBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		px := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   px * 0.999,
			High:   px * 1.005,
			Low:    px * 0.995,
			Close:  px,
			Volume: 100,
		}
	}
	return bars
}

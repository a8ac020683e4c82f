package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"TriggerBot/internal/model"
)

// Binance trades on Binance spot through the go-binance client.
type Binance struct {
	client *binance.Client
	log    *zap.Logger
}

// NewBinance creates a spot adapter. testnet routes every call to the spot test network.
func NewBinance(apiKey, secretKey string, testnet bool, log *zap.Logger) *Binance {
	if log == nil {
		log = zap.NewNop()
	}
	binance.UseTestnet = testnet
	return &Binance{client: binance.NewClient(apiKey, secretKey), log: log}
}

func (b *Binance) Name() string { return "binance" }

func symbolOf(pair string) (string, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

func (b *Binance) FetchLatestPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	symbol, err := symbolOf(pair)
	if err != nil {
		return decimal.Zero, err
	}
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: binance %s: %v", ErrPriceUnavailable, symbol, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: binance %s: bad price %q", ErrPriceUnavailable, symbol, p.Price)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: binance %s: symbol missing from response", ErrPriceUnavailable, symbol)
}

func (b *Binance) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance account: %w", err)
	}
	for _, bal := range account.Balances {
		if bal.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(bal.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("binance balance %s: %w", asset, err)
		}
		return free, nil
	}
	return decimal.Zero, nil
}

// PlaceOrder submits a market or limit order. A response without an order ID is returned as is
// so the caller can treat it as malformed.
func (b *Binance) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	symbol, err := symbolOf(req.Pair)
	if err != nil {
		return nil, err
	}

	side := binance.SideTypeBuy
	if req.Side == model.SideSell {
		side = binance.SideTypeSell
	}
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Quantity(req.Qty.String())
	if req.Type == model.OrderTypeLimit {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	start := time.Now()
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance %s %s: %w", req.Side, symbol, err)
	}
	b.log.Info("binance order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(req.Side)),
		zap.Int64("order_id", resp.OrderID),
		zap.String("status", string(resp.Status)),
		zap.Duration("took", time.Since(start)))

	switch resp.Status {
	case binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired, binance.OrderStatusTypeCanceled:
		return nil, fmt.Errorf("%w: binance order %d status %s", ErrOrderRejected, resp.OrderID, resp.Status)
	}

	res := &model.OrderResult{}
	if resp.OrderID != 0 {
		res.ID = strconv.FormatInt(resp.OrderID, 10)
	}
	res.FilledQty, _ = decimal.NewFromString(resp.ExecutedQuantity)
	res.Cost, _ = decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if res.FilledQty.IsPositive() && res.Cost.IsPositive() {
		res.AvgPrice = res.Cost.Div(res.FilledQty)
	}
	return res, nil
}

func (b *Binance) FetchDailyBars(ctx context.Context, pair string, days int) ([]model.OHLCV, error) {
	symbol, err := symbolOf(pair)
	if err != nil {
		return nil, err
	}
	klines, err := b.client.NewKlinesService().Symbol(symbol).Interval("1d").Limit(days).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	bars := make([]model.OHLCV, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, model.OHLCV{
			Time:   time.UnixMilli(k.OpenTime),
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
		})
	}
	return bars, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

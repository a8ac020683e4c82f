package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

const bitbankPublicURL = "https://public.bitbank.cc"

// BitbankFeed reads prices and daily candles from bitbank's public API. It needs no
// credentials and is used as the live price source for paper trading JPY pairs.
type BitbankFeed struct {
	BaseURL string
	Client  *http.Client
}

// NewBitbankFeed creates a feed with optional proxy support.
func NewBitbankFeed(proxyURL string) *BitbankFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &BitbankFeed{
		BaseURL: bitbankPublicURL,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

func (f *BitbankFeed) Name() string { return "bitbank" }

// bitbankPair turns "BTC/JPY" into "btc_jpy".
func bitbankPair(pair string) (string, error) {
	base, quote, err := SplitPair(pair)
	if err != nil {
		return "", err
	}
	return strings.ToLower(base + "_" + quote), nil
}

// bitbankEnvelope is the common response wrapper; data is decoded per endpoint.
type bitbankEnvelope struct {
	Success int             `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type bitbankTicker struct {
	Last string `json:"last"`
}

type bitbankCandles struct {
	Candlestick []struct {
		Type  string  `json:"type"`
		OHLCV [][]any `json:"ohlcv"`
	} `json:"candlestick"`
}

type bitbankError struct {
	Code int `json:"code"`
}

func (f *BitbankFeed) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "triggerbot/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("bitbank fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bitbank read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitbank: status %d, body: %s", resp.StatusCode, string(body))
	}

	var env bitbankEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("bitbank decode: %w", err)
	}
	if env.Success != 1 {
		var e bitbankError
		_ = json.Unmarshal(env.Data, &e)
		return fmt.Errorf("bitbank api error code %d", e.Code)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("bitbank decode data: %w", err)
	}
	return nil
}

func (f *BitbankFeed) FetchLatestPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	p, err := bitbankPair(pair)
	if err != nil {
		return decimal.Zero, err
	}
	var t bitbankTicker
	if err := f.get(ctx, "/"+p+"/ticker", &t); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	price, err := decimal.NewFromString(t.Last)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bitbank last %q", ErrPriceUnavailable, t.Last)
	}
	return price, nil
}

// FetchDailyBars returns up to days daily candles, oldest first. Candles are served per calendar
// year, so the previous year is fetched as well when the current one is too short.
func (f *BitbankFeed) FetchDailyBars(ctx context.Context, pair string, days int) ([]model.OHLCV, error) {
	p, err := bitbankPair(pair)
	if err != nil {
		return nil, err
	}
	year := time.Now().UTC().Year()
	bars, err := f.fetchYear(ctx, p, year)
	if err != nil {
		return nil, err
	}
	if len(bars) < days {
		prev, err := f.fetchYear(ctx, p, year-1)
		if err == nil {
			bars = append(prev, bars...)
		}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func (f *BitbankFeed) fetchYear(ctx context.Context, pair string, year int) ([]model.OHLCV, error) {
	var c bitbankCandles
	if err := f.get(ctx, fmt.Sprintf("/%s/candlestick/1day/%d", pair, year), &c); err != nil {
		return nil, err
	}
	var bars []model.OHLCV
	for _, cs := range c.Candlestick {
		for _, row := range cs.OHLCV {
			if len(row) < 6 {
				continue
			}
			bar := model.OHLCV{
				Open:   toFloat(row[0]),
				High:   toFloat(row[1]),
				Low:    toFloat(row[2]),
				Close:  toFloat(row[3]),
				Volume: toFloat(row[4]),
				Time:   time.UnixMilli(int64(toFloat(row[5]))),
			}
			if bar.Close == 0 {
				continue
			}
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// toFloat accepts the string and number encodings bitbank mixes in candle rows.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

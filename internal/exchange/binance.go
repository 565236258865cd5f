// internal/exchange/binance.go
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// PriceFeed returns the last traded price of a market symbol such as TRXUSDT.
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BinanceFeed reads spot prices from the public ticker endpoint.
type BinanceFeed struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewBinanceFeed(baseURL string, timeout time.Duration, rps float64) *BinanceFeed {
	if rps <= 0 {
		rps = 1
	}
	return &BinanceFeed{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *BinanceFeed) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("binance error (status %d): %s", resp.StatusCode, string(body))
	}

	var tp tickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode ticker: %w", err)
	}
	price, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", tp.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s for %s", price, symbol)
	}
	return price, nil
}

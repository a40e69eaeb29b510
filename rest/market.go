package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tradingiq/binance-collector/types"
)

func (c *Client) ExchangeInfo(ctx context.Context) (*types.ExchangeInfo, error) {
	body, err := c.Get(ctx, "/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}

	var info types.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode exchange info: %w", err)
	}
	return &info, nil
}

// KlinesRequest selects candles for one symbol. Zero times and limit are
// left out of the query.
type KlinesRequest struct {
	Symbol    string
	Interval  string
	StartTime int64
	EndTime   int64
	Limit     int
}

func (r KlinesRequest) params() map[string]any {
	params := map[string]any{
		"symbol":   r.Symbol,
		"interval": r.Interval,
	}
	if r.StartTime > 0 {
		params["startTime"] = r.StartTime
	}
	if r.EndTime > 0 {
		params["endTime"] = r.EndTime
	}
	if r.Limit > 0 {
		params["limit"] = r.Limit
	}
	return params
}

func (c *Client) Klines(ctx context.Context, req KlinesRequest) ([]types.Kline, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("klines request needs symbol and interval")
	}

	body, err := c.Get(ctx, "/klines", req.params())
	if err != nil {
		return nil, err
	}

	var klines []types.Kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("failed to decode klines for %s: %w", req.Symbol, err)
	}
	return klines, nil
}

// Ticker24hr fetches 24h rolling statistics for the given symbols in one
// request.
func (c *Client) Ticker24hr(ctx context.Context, symbols []string) ([]types.Ticker24hr, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	list, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols: %w", err)
	}

	body, err := c.Get(ctx, "/ticker/24hr", map[string]any{
		"symbols": url.QueryEscape(string(list)),
	})
	if err != nil {
		return nil, err
	}

	var tickers []types.Ticker24hr
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("failed to decode 24h tickers: %w", err)
	}
	return tickers, nil
}

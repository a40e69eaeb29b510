package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Path     string
	RawQuery string
}

type fakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.requests = append(api.requests, recordedRequest{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
		api.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) Requests() []recordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedRequest(nil), a.requests...)
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	c := NewClient(api.URL+"/api/v3", nil, opts...)
	t.Cleanup(c.Close)
	return c
}

func TestGet_SortedQuery(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `{"ok":true}`))
	c := newTestClient(t, api)

	body, err := c.Get(context.Background(), "/klines", map[string]any{
		"symbol":    "BTCUSDT",
		"limit":     1,
		"interval":  "1M",
		"startTime": int64(1700000000000),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	requests := api.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/api/v3/klines", requests[0].Path)
	assert.Equal(t, "interval=1M&limit=1&startTime=1700000000000&symbol=BTCUSDT", requests[0].RawQuery)
}

func TestGet_NoParamsNoQuery(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `{}`))
	c := newTestClient(t, api)

	_, err := c.Get(context.Background(), "/exchangeInfo", nil)
	require.NoError(t, err)
	assert.Equal(t, "", api.Requests()[0].RawQuery)
}

func TestGet_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   int
	}{
		{name: "plain server error", status: http.StatusBadGateway, body: `oops`, wantStatus: http.StatusBadGateway},
		{name: "api error with 400", status: http.StatusBadRequest, body: `{"code":-1121,"msg":"Invalid symbol."}`, wantStatus: http.StatusBadRequest, wantCode: -1121},
		{name: "api error with 200", status: http.StatusOK, body: `{"code":-1003,"msg":"Too many requests."}`, wantCode: -1003},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t, reply(tt.status, tt.body))
			c := newTestClient(t, api)

			_, err := c.Get(context.Background(), "/klines", map[string]any{"symbol": "NOPE"})
			require.Error(t, err)

			var httpErr *HTTPError
			if tt.wantStatus != 0 {
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &httpErr))
			}

			var apiErr *APIError
			if tt.wantCode != 0 {
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantCode, apiErr.Code)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}

func TestGet_RateLimited(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `{}`))
	c := newTestClient(t, api, WithRateLimit(1, time.Hour))

	_, err := c.Get(context.Background(), "/ping", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Get(ctx, "/ping", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, api.Requests(), 1)
}

func TestGet_RateLimitRefills(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `{}`))
	c := newTestClient(t, api, WithRateLimit(1, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "/ping", nil)
		require.NoError(t, err)
	}
	assert.Len(t, api.Requests(), 3)
}

func TestExchangeInfo(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `{
		"timezone": "UTC",
		"serverTime": 1700000000000,
		"symbols": [
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT","isSpotTradingAllowed":true,"permissions":[],"permissionSets":[["SPOT","MARGIN"]]},
			{"symbol":"ETHBTC","status":"BREAK","quoteAsset":"BTC","isSpotTradingAllowed":true,"permissions":["SPOT"]}
		]
	}`))
	c := newTestClient(t, api)

	info, err := c.ExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Symbols, 2)
	assert.Equal(t, "BTCUSDT", info.Symbols[0].Symbol)
	assert.True(t, info.Symbols[0].HasPermission("SPOT"))
	assert.Equal(t, "BREAK", info.Symbols[1].Status)
}

func TestKlines(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `[
		[1499040000000,"0.01634790","0.80000000","0.01575800","0.01577100","148976.11427815",1499644799999,"2434.19055334",308,"1756.87402397","28.46694368","0"]
	]`))
	c := newTestClient(t, api)

	klines, err := c.Klines(context.Background(), KlinesRequest{
		Symbol:    "BNBBTC",
		Interval:  "1m",
		StartTime: 1499040000000,
		Limit:     1000,
	})
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, int64(1499040000000), klines[0].OpenTime)
	assert.True(t, decimal.RequireFromString("0.01577100").Equal(klines[0].Close))
	assert.Equal(t, int64(308), klines[0].NumberOfTrades)

	assert.Equal(t, "interval=1m&limit=1000&startTime=1499040000000&symbol=BNBBTC", api.Requests()[0].RawQuery)
}

func TestKlines_RequiresSymbolAndInterval(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `[]`))
	c := newTestClient(t, api)

	_, err := c.Klines(context.Background(), KlinesRequest{Symbol: "BTCUSDT"})
	assert.Error(t, err)
	assert.Empty(t, api.Requests())
}

func TestTicker24hr(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `[
		{"symbol":"BTCUSDT","priceChangePercent":"2.5","lastPrice":"65000.10","volume":"1200.5"},
		{"symbol":"ETHUSDT","priceChangePercent":"-1.25","lastPrice":"3000","volume":"0"}
	]`))
	c := newTestClient(t, api)

	tickers, err := c.Ticker24hr(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.True(t, decimal.RequireFromString("2.5").Equal(tickers[0].PriceChangePercent))
	assert.True(t, tickers[1].Volume.IsZero())

	assert.Equal(t, "symbols=%5B%22BTCUSDT%22%2C%22ETHUSDT%22%5D", api.Requests()[0].RawQuery)
}

func TestTicker24hr_NoSymbols(t *testing.T) {
	api := newFakeAPI(t, reply(http.StatusOK, `[]`))
	c := newTestClient(t, api)

	tickers, err := c.Ticker24hr(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tickers)
	assert.Empty(t, api.Requests())
}

func TestClose_Idempotent(t *testing.T) {
	c := NewClient("", nil)
	c.Close()
	c.Close()
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

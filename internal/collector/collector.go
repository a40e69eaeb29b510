package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/rest"
	"github.com/tradingiq/binance-collector/types"
)

var ErrEmptyResponse = errors.New("empty response from exchange")

// MarketData is the part of the REST client the collector needs.
type MarketData interface {
	ExchangeInfo(ctx context.Context) (*types.ExchangeInfo, error)
	Klines(ctx context.Context, req rest.KlinesRequest) ([]types.Kline, error)
	Ticker24hr(ctx context.Context, symbols []string) ([]types.Ticker24hr, error)
}

// Collector runs the long, paced download jobs that feed the CSV files.
type Collector struct {
	market MarketData
	logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(market MarketData, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		market: market,
		logger: logger,
		now:    time.Now,
		sleep:  sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type ListingOptions struct {
	Years      int
	Limit      int
	Delay      time.Duration
	QuoteAsset string
}

func DefaultListingOptions() ListingOptions {
	return ListingOptions{
		Years:      2,
		Limit:      400,
		Delay:      15 * time.Second,
		QuoteAsset: "USDT",
	}
}

// ListedCoins finds spot symbols quoted in opts.QuoteAsset whose first
// monthly candle falls in the year exactly opts.Years before now, and writes
// them to <dir>/raw.csv.
func (c *Collector) ListedCoins(ctx context.Context, opts ListingOptions, dir string) ([]string, error) {
	info, err := c.market.ExchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	now := c.now().UTC()
	since := now.AddDate(0, 0, -365*opts.Years).UnixMilli()

	var coins []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != opts.QuoteAsset || !s.IsSpotTradingAllowed || !s.HasPermission("SPOT") {
			continue
		}
		if opts.Limit > 0 && len(coins) >= opts.Limit {
			break
		}

		if err := c.sleep(ctx, opts.Delay); err != nil {
			return coins, err
		}

		klines, err := c.market.Klines(ctx, rest.KlinesRequest{
			Symbol:    s.Symbol,
			Interval:  "1M",
			StartTime: since,
			Limit:     1,
		})
		if err != nil {
			c.logger.Error("Failed to get listing candle", zap.String("symbol", s.Symbol), zap.Error(err))
			continue
		}
		if len(klines) == 0 {
			continue
		}

		listed := time.UnixMilli(klines[0].OpenTime).UTC()
		if now.Year()-listed.Year() != opts.Years {
			continue
		}

		coins = append(coins, s.Symbol)
		c.logger.Info("Coin listed in target year",
			zap.String("symbol", s.Symbol),
			zap.Int("index", len(coins)),
			zap.Time("listed", listed),
		)
	}

	if _, err := WriteCoins(dir, CoinsFile, coins); err != nil {
		if errors.Is(err, ErrNoRows) {
			c.logger.Info("No coins matched, nothing written")
			return nil, nil
		}
		return coins, err
	}
	c.logger.Info("Coins written", zap.Int("count", len(coins)))
	return coins, nil
}

// Potential reads the symbols in symbolsPath, fetches their 24h statistics in
// one request and writes the top movers to <dir>/resource.csv.
func (c *Collector) Potential(ctx context.Context, symbolsPath, dir string) ([]PotentialCoin, error) {
	symbols, err := ReadSymbols(symbolsPath)
	if err != nil {
		return nil, err
	}

	tickers, err := c.market.Ticker24hr(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to get 24h tickers: %w", err)
	}

	coins, err := WriteCoinPotential(dir, PotentialFile, tickers)
	if errors.Is(err, ErrNoRows) {
		c.logger.Info("No tradable tickers, nothing written")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.logger.Info("Potential coins written", zap.Int("count", len(coins)))
	return coins, nil
}

type HistoryOptions struct {
	Years    int
	Delay    time.Duration
	Interval string
	Window   time.Duration
	Limit    int
	// Lag is how far before now the history ends.
	Lag time.Duration
}

func DefaultHistoryOptions() HistoryOptions {
	return HistoryOptions{
		Years:    1,
		Delay:    5 * time.Second,
		Interval: "1m",
		Window:   5 * time.Hour,
		Limit:    1000,
	}
}

// historyRange ends two months (or opts.Lag) before now and starts
// opts.Years earlier.
func (c *Collector) historyRange(opts HistoryOptions) (time.Time, time.Time) {
	end := c.now().AddDate(0, -2, 0)
	if opts.Lag > 0 {
		end = c.now().Add(-opts.Lag)
	}
	return end.AddDate(-opts.Years, 0, 0), end
}

// History pages through candles for every symbol in symbolsPath, advancing
// the start by opts.Window per request, and merges each page into
// <dir>/<SYMBOL>.csv. An empty page aborts the job.
func (c *Collector) History(ctx context.Context, opts HistoryOptions, symbolsPath, dir string) error {
	if opts.Window <= 0 {
		return fmt.Errorf("history window must be positive, got %s", opts.Window)
	}

	symbols, err := ReadSymbols(symbolsPath)
	if err != nil {
		return err
	}

	start, end := c.historyRange(opts)
	endMs := end.UnixMilli()

	for _, symbol := range symbols {
		for from := start; from.UnixMilli() < endMs; from = from.Add(opts.Window) {
			if err := c.sleep(ctx, opts.Delay); err != nil {
				return err
			}

			klines, err := c.market.Klines(ctx, rest.KlinesRequest{
				Symbol:    symbol,
				Interval:  opts.Interval,
				StartTime: from.UnixMilli(),
				EndTime:   endMs,
				Limit:     opts.Limit,
			})
			if err != nil {
				return fmt.Errorf("failed to get klines for %s: %w", symbol, err)
			}
			if len(klines) == 0 {
				c.logger.Error("Exchange returned no candles", zap.String("symbol", symbol), zap.Time("start", from))
				return fmt.Errorf("%w: %s from %s", ErrEmptyResponse, symbol, from.UTC().Format(time.RFC3339))
			}

			added, err := WriteHistoryKlines(dir, symbol, klines)
			if err != nil {
				return fmt.Errorf("failed to store klines for %s: %w", symbol, err)
			}
			c.logger.Info("History page stored",
				zap.String("symbol", symbol),
				zap.Time("start", from.Add(opts.Window)),
				zap.Time("end", end),
				zap.Int("added", added),
			)
		}
	}
	return nil
}

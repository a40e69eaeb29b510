package collector

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/tradingiq/binance-collector/types"
)

const (
	CoinsFile     = "raw"
	PotentialFile = "resource"

	maxPotential = 20
)

var (
	symbolHeader    = []string{"symbol"}
	potentialHeader = []string{"symbol", "priceChangePercent", "lastPrice", "volume"}
	klineHeader     = []string{
		"open_time", "open", "high", "low", "close", "volume", "close_time",
		"quote_asset_volume", "num_trades", "taker_buy_base_volume", "taker_buy_quote_volume",
	}
)

var ErrNoRows = errors.New("no rows to write")

// PotentialCoin is one row of the potential ranking.
type PotentialCoin struct {
	Symbol             string
	PriceChangePercent decimal.Decimal
	LastPrice          decimal.Decimal
	Volume             decimal.Decimal
}

func csvPath(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}

	// write then rename so readers never see a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// readCSV returns the header and the data rows of path.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%s is empty", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return header, rows, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found", name)
}

// WriteCoins writes symbols as a one-column CSV and returns its path.
func WriteCoins(dir, name string, symbols []string) (string, error) {
	if len(symbols) == 0 {
		return "", ErrNoRows
	}

	rows := make([][]string, len(symbols))
	for i, s := range symbols {
		rows[i] = []string{s}
	}

	path := csvPath(dir, name)
	return path, writeCSV(path, symbolHeader, rows)
}

// ReadSymbols reads the symbol column of a coins or potential CSV.
func ReadSymbols(path string) ([]string, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	idx, err := columnIndex(header, "symbol")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		if idx < len(row) && row[idx] != "" {
			symbols = append(symbols, row[idx])
		}
	}
	return symbols, nil
}

// RankPotential drops tickers with no last price or no volume, sorts the
// rest by 24h price change descending and keeps the top 20.
func RankPotential(tickers []types.Ticker24hr) []PotentialCoin {
	coins := make([]PotentialCoin, 0, len(tickers))
	for _, t := range tickers {
		if t.LastPrice.IsZero() || t.Volume.IsZero() {
			continue
		}
		coins = append(coins, PotentialCoin{
			Symbol:             t.Symbol,
			PriceChangePercent: t.PriceChangePercent,
			LastPrice:          t.LastPrice,
			Volume:             t.Volume,
		})
	}

	sort.SliceStable(coins, func(i, j int) bool {
		return coins[i].PriceChangePercent.GreaterThan(coins[j].PriceChangePercent)
	})

	if len(coins) > maxPotential {
		coins = coins[:maxPotential]
	}
	return coins
}

// WriteCoinPotential ranks tickers and writes the result. It returns the
// rows written.
func WriteCoinPotential(dir, name string, tickers []types.Ticker24hr) ([]PotentialCoin, error) {
	coins := RankPotential(tickers)
	if len(coins) == 0 {
		return nil, ErrNoRows
	}

	rows := make([][]string, len(coins))
	for i, c := range coins {
		rows[i] = []string{c.Symbol, c.PriceChangePercent.String(), c.LastPrice.String(), c.Volume.String()}
	}

	if err := writeCSV(csvPath(dir, name), potentialHeader, rows); err != nil {
		return nil, err
	}
	return coins, nil
}

func klineRecord(k types.Kline) []string {
	return []string{
		strconv.FormatInt(k.OpenTime, 10),
		k.Open.String(),
		k.High.String(),
		k.Low.String(),
		k.Close.String(),
		k.Volume.String(),
		strconv.FormatInt(k.CloseTime, 10),
		k.QuoteAssetVolume.String(),
		strconv.FormatInt(k.NumberOfTrades, 10),
		k.TakerBuyBaseAssetVolume.String(),
		k.TakerBuyQuoteAssetVolume.String(),
	}
}

func parseKlineRecord(header, row []string) (types.Kline, error) {
	var k types.Kline
	if len(row) != len(header) {
		return k, fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
	}

	ints := map[string]*int64{
		"open_time":  &k.OpenTime,
		"close_time": &k.CloseTime,
		"num_trades": &k.NumberOfTrades,
	}
	decimals := map[string]*decimal.Decimal{
		"open":                   &k.Open,
		"high":                   &k.High,
		"low":                    &k.Low,
		"close":                  &k.Close,
		"volume":                 &k.Volume,
		"quote_asset_volume":     &k.QuoteAssetVolume,
		"taker_buy_base_volume":  &k.TakerBuyBaseAssetVolume,
		"taker_buy_quote_volume": &k.TakerBuyQuoteAssetVolume,
	}

	for i, col := range header {
		if dst, ok := ints[col]; ok {
			v, err := strconv.ParseInt(row[i], 10, 64)
			if err != nil {
				return k, fmt.Errorf("column %s: %w", col, err)
			}
			*dst = v
			continue
		}
		if dst, ok := decimals[col]; ok {
			v, err := decimal.NewFromString(row[i])
			if err != nil {
				return k, fmt.Errorf("column %s: %w", col, err)
			}
			*dst = v
		}
	}
	return k, nil
}

// ReadKlines reads a candle history file.
func ReadKlines(path string) ([]types.Kline, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if _, err := columnIndex(header, "open_time"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	klines := make([]types.Kline, 0, len(rows))
	for i, row := range rows {
		k, err := parseKlineRecord(header, row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// WriteHistoryKlines merges a page of candles into <dir>/<symbol>.csv. Rows
// are keyed by open time and a page row replaces a stored row with the same
// open time. When the page brings no open time the file does not already
// hold, the file is left untouched. It returns how many new open times were
// added.
func WriteHistoryKlines(dir, symbol string, page []types.Kline) (int, error) {
	if len(page) == 0 {
		return 0, ErrNoRows
	}

	path := csvPath(dir, symbol)

	existing, err := ReadKlines(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	byOpen := make(map[int64]types.Kline, len(existing)+len(page))
	for _, k := range existing {
		byOpen[k.OpenTime] = k
	}

	added := 0
	for _, k := range page {
		if _, ok := byOpen[k.OpenTime]; !ok {
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}

	for _, k := range page {
		byOpen[k.OpenTime] = k
	}

	merged := make([]types.Kline, 0, len(byOpen))
	for _, k := range byOpen {
		merged = append(merged, k)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].OpenTime < merged[j].OpenTime
	})

	rows := make([][]string, len(merged))
	for i, k := range merged {
		rows[i] = klineRecord(k)
	}

	if err := writeCSV(path, klineHeader, rows); err != nil {
		return 0, err
	}
	return added, nil
}

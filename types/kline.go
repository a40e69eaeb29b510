package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kline is one candle row as returned by the REST /klines endpoint, which
// encodes each candle as a positional JSON array.
type Kline struct {
	OpenTime                 int64
	Open                     decimal.Decimal
	High                     decimal.Decimal
	Low                      decimal.Decimal
	Close                    decimal.Decimal
	Volume                   decimal.Decimal
	CloseTime                int64
	QuoteAssetVolume         decimal.Decimal
	NumberOfTrades           int64
	TakerBuyBaseAssetVolume  decimal.Decimal
	TakerBuyQuoteAssetVolume decimal.Decimal
}

const klineFields = 11

func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal kline row: %w", err)
	}
	if len(raw) < klineFields {
		return fmt.Errorf("kline row has %d fields, expected at least %d", len(raw), klineFields)
	}

	ints := []struct {
		idx int
		dst *int64
	}{
		{0, &k.OpenTime},
		{6, &k.CloseTime},
		{8, &k.NumberOfTrades},
	}
	for _, f := range ints {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return fmt.Errorf("failed to parse kline field %d: %w", f.idx, err)
		}
	}

	decimals := []struct {
		idx int
		dst *decimal.Decimal
	}{
		{1, &k.Open},
		{2, &k.High},
		{3, &k.Low},
		{4, &k.Close},
		{5, &k.Volume},
		{7, &k.QuoteAssetVolume},
		{9, &k.TakerBuyBaseAssetVolume},
		{10, &k.TakerBuyQuoteAssetVolume},
	}
	for _, f := range decimals {
		if err := f.dst.UnmarshalJSON(raw[f.idx]); err != nil {
			return fmt.Errorf("failed to parse kline field %d: %w", f.idx, err)
		}
	}

	return nil
}

func (k *Kline) GetOpenPrice() float64 {
	return k.Open.InexactFloat64()
}

func (k *Kline) GetClosePrice() float64 {
	return k.Close.InexactFloat64()
}

func (k *Kline) GetHighPrice() float64 {
	return k.High.InexactFloat64()
}

func (k *Kline) GetLowPrice() float64 {
	return k.Low.InexactFloat64()
}

func (k *Kline) GetBaseVolume() float64 {
	return k.Volume.InexactFloat64()
}

func (k *Kline) GetQuoteVolume() float64 {
	return k.QuoteAssetVolume.InexactFloat64()
}

package types

import (
	"github.com/shopspring/decimal"
)

type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol                 string     `json:"symbol"`
	Status                 string     `json:"status"`
	BaseAsset              string     `json:"baseAsset"`
	QuoteAsset             string     `json:"quoteAsset"`
	IsSpotTradingAllowed   bool       `json:"isSpotTradingAllowed"`
	IsMarginTradingAllowed bool       `json:"isMarginTradingAllowed"`
	Permissions            []string   `json:"permissions"`
	PermissionSets         [][]string `json:"permissionSets"`
}

// HasPermission reports whether perm appears in the flat permission list or
// in any of the permission sets.
func (s SymbolInfo) HasPermission(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	for _, set := range s.PermissionSets {
		for _, p := range set {
			if p == perm {
				return true
			}
		}
	}
	return false
}

type Ticker24hr struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           int64           `json:"openTime"`
	CloseTime          int64           `json:"closeTime"`
	Count              int64           `json:"count"`
}

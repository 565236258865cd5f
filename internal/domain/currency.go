// internal/domain/currency.go
package domain

import (
	"fmt"
	"strings"
)

// Currency is a ledger asset accepted for recharge.
type Currency string

const (
	CurrencyTRX  Currency = "TRX"
	CurrencyUSDT Currency = "USDT"
)

// SupportedCurrencies lists every currency the scanner keeps a cursor for.
var SupportedCurrencies = []Currency{CurrencyTRX, CurrencyUSDT}

type AssetType string

const (
	AssetTypeNative AssetType = "native" // TRX
	AssetTypeToken  AssetType = "token"  // USDT (TRC20)
)

// SettlementPrecision is the number of decimals decorated amounts carry.
const SettlementPrecision int32 = 2

// ParseCurrency accepts case-insensitive currency codes.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	switch c {
	case CurrencyTRX, CurrencyUSDT:
		return true
	}
	return false
}

func (c Currency) AssetType() AssetType {
	if c == CurrencyUSDT {
		return AssetTypeToken
	}
	return AssetTypeNative
}

// Decimals returns the on-chain decimal count (SUN for TRX, 6 for USDT).
func (c Currency) Decimals() int32 {
	return 6
}

func (c Currency) String() string {
	return string(c)
}

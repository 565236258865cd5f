// internal/domain/rate.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RateSource string

const (
	RateSourceFixed    RateSource = "fixed"
	RateSourceFeed     RateSource = "feed"
	RateSourceOverride RateSource = "override"
	RateSourceFallback RateSource = "fallback"
)

// RateInfo describes the ledger-unit to credit rate currently in effect.
type RateInfo struct {
	Currency    Currency        `json:"currency"`
	Rate        decimal.Decimal `json:"rate"`
	Source      RateSource      `json:"source"`
	FetchedAt   time.Time       `json:"fetched_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	FeedEnabled bool            `json:"feed_enabled"`
}

// RateOverride is an administrative fixed rate persisted across restarts.
type RateOverride struct {
	Currency  Currency
	Rate      decimal.Decimal
	UpdatedAt time.Time
}

// internal/domain/errors.go
package domain

import "errors"

var (
	ErrAllocationExhausted = errors.New("no free payment amount available, try again later")
	ErrOrderNotFound       = errors.New("order not found")
	ErrActiveOrderExists   = errors.New("user already has an active order")
	ErrNotOrderOwner       = errors.New("order belongs to another user")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountTooSmall      = errors.New("amount below minimum")
	ErrAmountTooLarge      = errors.New("amount above maximum")
	ErrInvalidMonths       = errors.New("invalid vip months")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMalformedAddress    = errors.New("malformed address")
	ErrInvalidRate         = errors.New("rate must be positive")
	ErrUnknownSetting      = errors.New("unknown setting")
	ErrInvalidSetting      = errors.New("invalid setting value")
	ErrBlockUnavailable    = errors.New("block not available")
	ErrMissingTxHash       = errors.New("tx hash is required")
	ErrFeedNotConfigured   = errors.New("no price feed configured")
)

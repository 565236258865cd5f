// internal/domain/identifier.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountIdentifier reserves a decorated amount for one in-flight order.
type AmountIdentifier struct {
	Currency   Currency
	Amount     decimal.Decimal
	IsUsed     bool
	OrderID    *string
	ReservedAt time.Time
	ReleasedAt *time.Time
}

// internal/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the closed set of order life-cycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusExpired, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPending:
		return false
	case OrderStatusCompleted, OrderStatusExpired, OrderStatusCancelled:
		return true
	}
	return true
}

// CanTransitionTo allows only pending -> completed|expired|cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		switch next {
		case OrderStatusCompleted, OrderStatusExpired, OrderStatusCancelled:
			return true
		case OrderStatusPending:
			return false
		}
	case OrderStatusCompleted, OrderStatusExpired, OrderStatusCancelled:
		return false
	}
	return false
}

type OrderType string

const (
	OrderTypeRecharge OrderType = "recharge"
	OrderTypeVIP      OrderType = "vip"
)

func ParseOrderType(s string) (OrderType, bool) {
	switch t := OrderType(s); t {
	case OrderTypeRecharge, OrderTypeVIP:
		return t, true
	}
	return "", false
}

// Order is a request to receive one exact payment on the shared wallet.
type Order struct {
	OrderID  string
	UserID   int64
	Type     OrderType
	Currency Currency

	BaseAmount decimal.Decimal
	// Amount is the decorated amount the payer must send.
	Amount decimal.Decimal
	// ReceivedAmount is the matched on-chain amount, set on completion.
	ReceivedAmount decimal.NullDecimal
	// CreditValue is the quote at creation and the settled value after completion.
	CreditValue decimal.Decimal
	VIPMonths   int

	Status        OrderStatus
	WalletAddress string
	TxHash        *string

	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (o *Order) IsOverdue(now time.Time) bool {
	return o.Status == OrderStatusPending && !now.Before(o.ExpiresAt)
}

// CreateOrderRequest is the order-creation entrypoint input.
type CreateOrderRequest struct {
	UserID   int64
	Currency Currency
	Amount   decimal.Decimal
	// TTL overrides the configured order timeout when positive.
	TTL time.Duration
}

type CreateVIPOrderRequest struct {
	UserID   int64
	Currency Currency
	Months   int
}

// Settlement is the atomic completion of a pending order.
type Settlement struct {
	OrderID   string
	TxHash    string
	Currency  Currency
	Amount    decimal.Decimal
	Credits   decimal.Decimal
	SettledAt time.Time
}

// SettlementResult reports what a settlement changed. Applied is false when
// the order was already terminal and nothing was written.
type SettlementResult struct {
	Applied      bool
	Order        *Order
	BalanceAfter decimal.Decimal
	VIPExpiresAt *time.Time
}

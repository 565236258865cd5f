// internal/domain/notification.go
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementNotice is emitted after an order is settled.
type SettlementNotice struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	UserID       int64           `json:"user_id"`
	OrderID      string          `json:"order_id"`
	OrderType    OrderType       `json:"order_type"`
	Currency     Currency        `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Credits      decimal.Decimal `json:"credits"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	VIPExpiresAt *time.Time      `json:"vip_expires_at,omitempty"`
	TxHash       string          `json:"tx_hash"`
	Timestamp    time.Time       `json:"timestamp"`
}

const EventRechargeCompleted = "recharge.completed"

// Notifier delivers settlement notices. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, notice *SettlementNotice) error
}

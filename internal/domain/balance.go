// internal/domain/balance.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Balance struct {
	UserID      int64
	Balance     decimal.Decimal
	TotalEarned decimal.Decimal
	TotalSpent  decimal.Decimal
	UpdatedAt   time.Time
}

type ChangeType string

const (
	ChangeTypeRecharge    ChangeType = "recharge"
	ChangeTypeAdminCredit ChangeType = "admin_credit"
	ChangeTypeAdminDebit  ChangeType = "admin_debit"
	ChangeTypeConsume     ChangeType = "consume"
)

// BalanceChange is a signed delta applied atomically with its audit entry.
type BalanceChange struct {
	UserID      int64
	Amount      decimal.Decimal
	ChangeType  ChangeType
	Description string
	OperatorID  *int64
	Reference   string
}

// BalanceLog is the immutable audit row written for every delta.
type BalanceLog struct {
	ID            int64
	UserID        int64
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ChangeType    ChangeType
	Description   string
	OperatorID    *int64
	Reference     string
	CreatedAt     time.Time
}

// VIPMembership is extended by settled VIP orders.
type VIPMembership struct {
	UserID    int64
	ExpiresAt time.Time
	UpdatedAt time.Time
}

func (m *VIPMembership) IsActive(now time.Time) bool {
	return m != nil && now.Before(m.ExpiresAt)
}

// VIPDaysPerMonth is the membership length bought by one month.
const VIPDaysPerMonth = 30

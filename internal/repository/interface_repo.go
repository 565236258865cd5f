// internal/repository/interface_repo.go
package repository

import (
	"context"
	"time"

	"recharge-service/internal/domain"

	"github.com/shopspring/decimal"
)

// IdentifierRepository owns decorated amount reservations. Reserve is the
// only serialization point between concurrent order creations and must be
// an atomic check-and-set in storage.
type IdentifierRepository interface {
	// Reserve marks (currency, amount) in flight. It returns false when the
	// amount is already reserved by someone else.
	Reserve(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (bool, error)

	// Release clears the reservation. Releasing a free amount is a no-op.
	Release(ctx context.Context, currency domain.Currency, amount decimal.Decimal) error

	Get(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.AmountIdentifier, error)

	// ReleaseOrphaned frees reservations that were never bound to an order
	// and were taken before reservedBefore. It returns how many were freed.
	ReleaseOrphaned(ctx context.Context, reservedBefore time.Time) (int64, error)
}

// OrderRepository owns order records and their state transitions. Every
// transition out of pending also releases the order's identifier in the same
// transaction.
type OrderRepository interface {
	// Create inserts a pending order and binds its reserved identifier.
	// Returns domain.ErrActiveOrderExists if the user already has a pending order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID returns domain.ErrOrderNotFound when absent.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// FindPendingByAmount returns nil when no pending order carries amount.
	FindPendingByAmount(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.Order, error)

	// GetPendingByUser returns the user's pending order or nil.
	GetPendingByUser(ctx context.Context, userID int64) (*domain.Order, error)

	// Cancel returns false if the order is not pending.
	Cancel(ctx context.Context, orderID string, now time.Time) (bool, error)

	// ExpireOverdue expires every pending order with expires_at <= now and
	// returns the expired orders.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*domain.Order, error)

	// Settle completes a pending order, applies its effect (balance credit
	// with audit row, or VIP extension) and releases the identifier in one
	// transaction. Applied is false when the order was already terminal.
	Settle(ctx context.Context, s *domain.Settlement) (*domain.SettlementResult, error)

	Stats(ctx context.Context, from, to time.Time) (*domain.RechargeStats, error)
}

// CursorRepository persists the highest fully processed block per currency.
type CursorRepository interface {
	Get(ctx context.Context, currency domain.Currency) (height int64, found bool, err error)

	// Save never moves a cursor backwards.
	Save(ctx context.Context, currency domain.Currency, height int64) error
}

type BalanceRepository interface {
	// Get returns a zero balance for unknown users.
	Get(ctx context.Context, userID int64) (*domain.Balance, error)

	// Apply adds change.Amount (signed) and writes the audit row atomically.
	// Returns domain.ErrInsufficientBalance without writing on underflow.
	Apply(ctx context.Context, change *domain.BalanceChange) (*domain.BalanceLog, error)

	Logs(ctx context.Context, userID int64, limit int) ([]*domain.BalanceLog, error)
}

type VIPRepository interface {
	// Get returns nil for users who never bought VIP.
	Get(ctx context.Context, userID int64) (*domain.VIPMembership, error)
}

type RateRepository interface {
	GetOverride(ctx context.Context, currency domain.Currency) (*domain.RateOverride, error)
	SetOverride(ctx context.Context, currency domain.Currency, rate decimal.Decimal) error
	ClearOverride(ctx context.Context, currency domain.Currency) error
}

type SettingsRepository interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// Store groups the repositories of one storage backend.
type Store struct {
	Identifiers IdentifierRepository
	Orders      OrderRepository
	Cursors     CursorRepository
	Balances    BalanceRepository
	VIP         VIPRepository
	Rates       RateRepository
	Settings    SettingsRepository

	closeFn func() error
}

func NewStore(
	identifiers IdentifierRepository,
	orders OrderRepository,
	cursors CursorRepository,
	balances BalanceRepository,
	vip VIPRepository,
	rates RateRepository,
	settings SettingsRepository,
	closeFn func() error,
) *Store {
	return &Store{
		Identifiers: identifiers,
		Orders:      orders,
		Cursors:     cursors,
		Balances:    balances,
		VIP:         vip,
		Rates:       rates,
		Settings:    settings,
		closeFn:     closeFn,
	}
}

func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

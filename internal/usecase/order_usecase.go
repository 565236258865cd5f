// internal/usecase/order_usecase.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"
	"recharge-service/internal/repository"
	"recharge-service/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	MinVIPMonths = 1
	MaxVIPMonths = 12
)

// RateConverter converts between ledger amounts and internal credits.
type RateConverter interface {
	ToCredits(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (decimal.Decimal, error)
	FromCredits(ctx context.Context, currency domain.Currency, credits decimal.Decimal) (decimal.Decimal, error)
}

type OrderUsecase struct {
	orders    repository.OrderRepository
	allocator *IdentifierAllocator
	rates     RateConverter
	settings  *SettingsUsecase
	ids       *utils.IDGenerator
	maxAmount decimal.Decimal
	now       func() time.Time
	logger    *zap.Logger
}

func NewOrderUsecase(
	orders repository.OrderRepository,
	allocator *IdentifierAllocator,
	rates RateConverter,
	settings *SettingsUsecase,
	ids *utils.IDGenerator,
	maxAmount decimal.Decimal,
	logger *zap.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		orders:    orders,
		allocator: allocator,
		rates:     rates,
		settings:  settings,
		ids:       ids,
		maxAmount: maxAmount,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (uc *OrderUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

func (uc *OrderUsecase) Now() time.Time {
	return uc.now()
}

// ============================================================================
// ORDER CREATION
// ============================================================================

// CreateOrder allocates a decorated amount and opens a pending recharge order.
func (uc *OrderUsecase) CreateOrder(ctx context.Context, req *domain.CreateOrderRequest) (*domain.Order, error) {
	if !req.Currency.Valid() {
		return nil, domain.ErrUnsupportedCurrency
	}
	if err := uc.validateAmount(ctx, req.Amount); err != nil {
		return nil, err
	}
	if err := uc.ensureNoActiveOrder(ctx, req.UserID); err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = uc.settings.OrderTTL(ctx)
	}

	order := &domain.Order{
		UserID:     req.UserID,
		Type:       domain.OrderTypeRecharge,
		Currency:   req.Currency,
		BaseAmount: req.Amount,
	}
	return uc.open(ctx, order, ttl, utils.PrefixRechargeOrder, func(decorated decimal.Decimal) (decimal.Decimal, error) {
		return uc.rates.ToCredits(ctx, req.Currency, decorated)
	})
}

// CreateVIPOrder prices months of membership in currency and opens a VIP order.
func (uc *OrderUsecase) CreateVIPOrder(ctx context.Context, req *domain.CreateVIPOrderRequest) (*domain.Order, error) {
	if !req.Currency.Valid() {
		return nil, domain.ErrUnsupportedCurrency
	}
	if req.Months < MinVIPMonths || req.Months > MaxVIPMonths {
		return nil, domain.ErrInvalidMonths
	}
	if err := uc.ensureNoActiveOrder(ctx, req.UserID); err != nil {
		return nil, err
	}

	credits := uc.settings.VIPMonthlyPrice(ctx).Mul(decimal.NewFromInt(int64(req.Months)))
	base, err := uc.rates.FromCredits(ctx, req.Currency, credits)
	if err != nil {
		return nil, fmt.Errorf("failed to price vip order: %w", err)
	}

	order := &domain.Order{
		UserID:     req.UserID,
		Type:       domain.OrderTypeVIP,
		Currency:   req.Currency,
		BaseAmount: base,
		VIPMonths:  req.Months,
	}
	return uc.open(ctx, order, uc.settings.OrderTTL(ctx), utils.PrefixVIPOrder, func(decimal.Decimal) (decimal.Decimal, error) {
		return credits, nil
	})
}

func (uc *OrderUsecase) open(
	ctx context.Context,
	order *domain.Order,
	ttl time.Duration,
	prefix string,
	quote func(decorated decimal.Decimal) (decimal.Decimal, error),
) (*domain.Order, error) {
	wallet, err := uc.settings.WalletAddress(ctx)
	if err != nil {
		return nil, err
	}

	decorated, err := uc.allocator.Allocate(ctx, order.BaseAmount, order.Currency)
	if err != nil {
		return nil, err
	}

	credits, err := quote(decorated)
	if err != nil {
		uc.release(ctx, decorated, order.Currency)
		return nil, err
	}

	now := uc.now()
	order.OrderID = uc.ids.OrderID(prefix, now)
	order.Amount = decorated
	order.CreditValue = credits
	order.WalletAddress = wallet
	order.CreatedAt = now
	order.ExpiresAt = now.Add(ttl)

	if err := uc.orders.Create(ctx, order); err != nil {
		uc.release(ctx, decorated, order.Currency)
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(order.Currency), string(order.Type)).Inc()
	uc.logger.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.Int64("user_id", order.UserID),
		zap.String("type", string(order.Type)),
		zap.String("currency", string(order.Currency)),
		zap.String("amount", order.Amount.StringFixed(domain.SettlementPrecision)),
		zap.Time("expires_at", order.ExpiresAt),
	)
	return order, nil
}

func (uc *OrderUsecase) validateAmount(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(domain.SettlementPrecision)) {
		return domain.ErrInvalidAmount
	}
	if minimum := uc.settings.MinAmount(ctx); amount.LessThan(minimum) {
		return fmt.Errorf("%w: minimum is %s", domain.ErrAmountTooSmall, minimum.String())
	}
	if uc.maxAmount.IsPositive() && amount.GreaterThan(uc.maxAmount) {
		return fmt.Errorf("%w: maximum is %s", domain.ErrAmountTooLarge, uc.maxAmount.String())
	}
	return nil
}

// ensureNoActiveOrder rejects a second live order. An overdue one is swept
// first so the user is not blocked until the next scan cycle.
func (uc *OrderUsecase) ensureNoActiveOrder(ctx context.Context, userID int64) error {
	existing, err := uc.orders.GetPendingByUser(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if !existing.IsOverdue(uc.now()) {
		return domain.ErrActiveOrderExists
	}
	_, err = uc.ExpireAllOverdue(ctx)
	return err
}

func (uc *OrderUsecase) release(ctx context.Context, amount decimal.Decimal, currency domain.Currency) {
	if err := uc.allocator.Release(context.WithoutCancel(ctx), amount, currency); err != nil {
		uc.logger.Error("failed to release identifier",
			zap.String("currency", string(currency)),
			zap.String("amount", amount.StringFixed(domain.SettlementPrecision)),
			zap.Error(err),
		)
	}
}

// ============================================================================
// QUERIES AND TRANSITIONS
// ============================================================================

func (uc *OrderUsecase) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return uc.orders.GetByID(ctx, orderID)
}

// GetActiveOrder returns the user's live pending order, or nil.
func (uc *OrderUsecase) GetActiveOrder(ctx context.Context, userID int64) (*domain.Order, error) {
	order, err := uc.orders.GetPendingByUser(ctx, userID)
	if err != nil || order == nil {
		return nil, err
	}
	if order.IsOverdue(uc.now()) {
		return nil, nil
	}
	return order, nil
}

// FindPendingByAmount returns the pending order paying exactly amount.
func (uc *OrderUsecase) FindPendingByAmount(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.Order, error) {
	return uc.orders.FindPendingByAmount(ctx, currency, amount.Round(domain.SettlementPrecision))
}

// CancelOrder cancels a pending order owned by userID. It returns false when
// the order is already terminal.
func (uc *OrderUsecase) CancelOrder(ctx context.Context, orderID string, userID int64) (bool, error) {
	order, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.UserID != userID {
		return false, domain.ErrNotOrderOwner
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return false, nil
	}

	ok, err := uc.orders.Cancel(ctx, orderID, uc.now())
	if err != nil {
		return false, err
	}
	if ok {
		metrics.OrdersCancelled.Inc()
		uc.logger.Info("order cancelled", zap.String("order_id", orderID), zap.Int64("user_id", userID))
	}
	return ok, nil
}

// ExpireAllOverdue expires every overdue pending order and frees its amount.
// Reservations older than one order ttl that never got an order are freed
// as well.
func (uc *OrderUsecase) ExpireAllOverdue(ctx context.Context) (int, error) {
	now := uc.now()
	expired, err := uc.orders.ExpireOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire orders: %w", err)
	}
	if _, err := uc.allocator.ReclaimOrphaned(ctx, now.Add(-uc.settings.OrderTTL(ctx))); err != nil {
		uc.logger.Warn("failed to reclaim orphaned reservations", zap.Error(err))
	}
	for _, o := range expired {
		uc.logger.Info("order expired",
			zap.String("order_id", o.OrderID),
			zap.Int64("user_id", o.UserID),
			zap.String("amount", o.Amount.StringFixed(domain.SettlementPrecision)),
		)
	}
	metrics.OrdersExpired.Add(float64(len(expired)))
	return len(expired), nil
}

// internal/usecase/settlement_usecase.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"
	"recharge-service/internal/repository"
	"recharge-service/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// SettlementUsecase turns a matching transfer into a completed order.
type SettlementUsecase struct {
	orders   repository.OrderRepository
	rates    RateConverter
	notifier domain.Notifier
	now      func() time.Time
	logger   *zap.Logger
}

func NewSettlementUsecase(orders repository.OrderRepository, rates RateConverter, notifier domain.Notifier, logger *zap.Logger) *SettlementUsecase {
	return &SettlementUsecase{
		orders:   orders,
		rates:    rates,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

func (uc *SettlementUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

// SettleTransfer settles the pending order whose decorated amount equals the
// transfer. It returns nil when nothing matched. Errors are storage failures
// and leave the transfer eligible for a retry.
func (uc *SettlementUsecase) SettleTransfer(ctx context.Context, t *domain.Transfer) (*domain.SettlementResult, error) {
	order, err := uc.orders.FindPendingByAmount(ctx, t.Currency, t.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		metrics.UnmatchedDeposits.WithLabelValues(string(t.Currency)).Inc()
		uc.logger.Info("deposit matched no pending order",
			zap.String("tx_id", t.TxID),
			zap.Int64("block", t.BlockNumber),
			zap.String("currency", string(t.Currency)),
			zap.String("amount", t.Amount.StringFixed(domain.SettlementPrecision)),
			zap.String("from", t.From),
		)
		return nil, nil
	}

	metrics.TransfersMatched.WithLabelValues(string(t.Currency)).Inc()
	return uc.settle(ctx, order, t.TxID, t.Amount)
}

// CompleteOrder settles a pending order by hand, e.g. after an operator
// verified a payment the scanner could not match. A zero amount means the
// order's decorated amount.
func (uc *SettlementUsecase) CompleteOrder(ctx context.Context, orderID, txHash string, amount decimal.Decimal) (*domain.SettlementResult, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, domain.ErrMissingTxHash
	}
	if amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	order, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return &domain.SettlementResult{Applied: false, Order: order}, nil
	}
	if amount.IsZero() {
		amount = order.Amount
	}
	return uc.settle(ctx, order, txHash, amount.Round(domain.SettlementPrecision))
}

func (uc *SettlementUsecase) settle(ctx context.Context, order *domain.Order, txHash string, amount decimal.Decimal) (*domain.SettlementResult, error) {
	credits := order.CreditValue
	if order.Type == domain.OrderTypeRecharge {
		var err error
		if credits, err = uc.rates.ToCredits(ctx, order.Currency, amount); err != nil {
			return nil, fmt.Errorf("failed to convert amount: %w", err)
		}
	}

	res, err := uc.orders.Settle(ctx, &domain.Settlement{
		OrderID:   order.OrderID,
		TxHash:    txHash,
		Currency:  order.Currency,
		Amount:    amount,
		Credits:   credits,
		SettledAt: uc.now(),
	})
	if err != nil {
		metrics.Settlements.WithLabelValues(string(order.Currency), "error").Inc()
		return nil, fmt.Errorf("failed to settle order %s: %w", order.OrderID, err)
	}
	if !res.Applied {
		metrics.Settlements.WithLabelValues(string(order.Currency), "duplicate").Inc()
		uc.logger.Debug("order already terminal, settlement skipped",
			zap.String("order_id", order.OrderID),
			zap.String("tx_hash", txHash),
		)
		return res, nil
	}

	metrics.Settlements.WithLabelValues(string(order.Currency), "applied").Inc()
	uc.logger.Info("order settled",
		zap.String("order_id", order.OrderID),
		zap.Int64("user_id", order.UserID),
		zap.String("type", string(order.Type)),
		zap.String("currency", string(order.Currency)),
		zap.String("amount", amount.StringFixed(domain.SettlementPrecision)),
		zap.String("credits", credits.StringFixed(2)),
		zap.String("tx_hash", txHash),
	)

	uc.notify(ctx, res, credits)
	return res, nil
}

func (uc *SettlementUsecase) notify(ctx context.Context, res *domain.SettlementResult, credits decimal.Decimal) {
	if uc.notifier == nil {
		return
	}

	o := res.Order
	notice := &domain.SettlementNotice{
		EventID:      utils.EventID(),
		EventType:    domain.EventRechargeCompleted,
		UserID:       o.UserID,
		OrderID:      o.OrderID,
		OrderType:    o.Type,
		Currency:     o.Currency,
		Amount:       o.ReceivedAmount.Decimal,
		Credits:      credits,
		BalanceAfter: res.BalanceAfter,
		VIPExpiresAt: res.VIPExpiresAt,
		Timestamp:    uc.now(),
	}
	if o.TxHash != nil {
		notice.TxHash = *o.TxHash
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := uc.notifier.Notify(ctx, notice); err != nil {
		uc.logger.Warn("settlement notification failed",
			zap.String("order_id", o.OrderID),
			zap.Error(err),
		)
	}
}

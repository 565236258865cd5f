// internal/usecase/balance_usecase.go
package usecase

import (
	"context"
	"fmt"

	"recharge-service/internal/domain"
	"recharge-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

type BalanceUsecase struct {
	balances repository.BalanceRepository
	vip      repository.VIPRepository
	logger   *zap.Logger
}

func NewBalanceUsecase(balances repository.BalanceRepository, vip repository.VIPRepository, logger *zap.Logger) *BalanceUsecase {
	return &BalanceUsecase{balances: balances, vip: vip, logger: logger}
}

func (uc *BalanceUsecase) Balance(ctx context.Context, userID int64) (*domain.Balance, error) {
	return uc.balances.Get(ctx, userID)
}

// Adjust applies a signed delta. Credits must be positive and debits negative
// for their change type; an underflowing debit leaves the balance untouched.
func (uc *BalanceUsecase) Adjust(
	ctx context.Context,
	userID int64,
	delta decimal.Decimal,
	changeType domain.ChangeType,
	description string,
	operatorID *int64,
) (*domain.BalanceLog, error) {
	if delta.IsZero() || !delta.Equal(delta.Round(2)) {
		return nil, domain.ErrInvalidAmount
	}
	switch changeType {
	case domain.ChangeTypeAdminCredit:
		if delta.IsNegative() {
			return nil, fmt.Errorf("%w: credit must be positive", domain.ErrInvalidAmount)
		}
	case domain.ChangeTypeAdminDebit, domain.ChangeTypeConsume:
		if delta.IsPositive() {
			return nil, fmt.Errorf("%w: debit must be negative", domain.ErrInvalidAmount)
		}
	default:
		return nil, fmt.Errorf("%w: change type %q", domain.ErrInvalidAmount, changeType)
	}

	log, err := uc.balances.Apply(ctx, &domain.BalanceChange{
		UserID:      userID,
		Amount:      delta,
		ChangeType:  changeType,
		Description: description,
		OperatorID:  operatorID,
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("user_id", userID),
		zap.String("delta", delta.StringFixed(2)),
		zap.String("balance_after", log.BalanceAfter.StringFixed(2)),
		zap.String("change_type", string(changeType)),
	}
	if operatorID != nil {
		fields = append(fields, zap.Int64("operator_id", *operatorID))
	}
	uc.logger.Info("balance adjusted", fields...)
	return log, nil
}

func (uc *BalanceUsecase) Logs(ctx context.Context, userID int64, limit int) ([]*domain.BalanceLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return uc.balances.Logs(ctx, userID, limit)
}

// VIP returns nil for users who never bought a membership.
func (uc *BalanceUsecase) VIP(ctx context.Context, userID int64) (*domain.VIPMembership, error) {
	return uc.vip.Get(ctx, userID)
}

// internal/usecase/identifier_allocator.go
package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"
	"recharge-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// suffixCount covers 0.01 .. 0.99.
	suffixCount        = 99
	defaultMaxAttempts = 100
)

// IdentifierAllocator hands out decorated amounts. Uniqueness is enforced by
// the repository's atomic Reserve; this type only picks candidates.
type IdentifierAllocator struct {
	repo        repository.IdentifierRepository
	maxAttempts int
	perm        func(n int) []int
	logger      *zap.Logger
}

func NewIdentifierAllocator(repo repository.IdentifierRepository, maxAttempts int, logger *zap.Logger) *IdentifierAllocator {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &IdentifierAllocator{
		repo:        repo,
		maxAttempts: maxAttempts,
		perm:        rand.Perm,
		logger:      logger,
	}
}

// Allocate reserves base + 0.xx for a random free suffix.
func (a *IdentifierAllocator) Allocate(ctx context.Context, base decimal.Decimal, currency domain.Currency) (decimal.Decimal, error) {
	base = base.Truncate(domain.SettlementPrecision)
	step := decimal.New(1, -domain.SettlementPrecision)

	var order []int
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt%suffixCount == 0 {
			order = a.perm(suffixCount)
		}
		suffix := int64(order[attempt%suffixCount] + 1)
		candidate := base.Add(step.Mul(decimal.NewFromInt(suffix)))

		ok, err := a.repo.Reserve(ctx, currency, candidate)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to reserve amount: %w", err)
		}
		if ok {
			return candidate, nil
		}
	}

	metrics.AllocationExhausted.WithLabelValues(string(currency)).Inc()
	a.logger.Warn("decorated amount allocation exhausted",
		zap.String("currency", string(currency)),
		zap.String("base_amount", base.StringFixed(domain.SettlementPrecision)),
		zap.Int("attempts", a.maxAttempts),
	)
	return decimal.Zero, domain.ErrAllocationExhausted
}

// ReclaimOrphaned frees amounts reserved before reservedBefore that never
// reached an order.
func (a *IdentifierAllocator) ReclaimOrphaned(ctx context.Context, reservedBefore time.Time) (int64, error) {
	n, err := a.repo.ReleaseOrphaned(ctx, reservedBefore)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.Warn("reclaimed orphaned amount reservations",
			zap.Int64("count", n),
			zap.Time("reserved_before", reservedBefore),
		)
	}
	return n, nil
}

// Release is idempotent.
func (a *IdentifierAllocator) Release(ctx context.Context, amount decimal.Decimal, currency domain.Currency) error {
	return a.repo.Release(ctx, currency, amount)
}

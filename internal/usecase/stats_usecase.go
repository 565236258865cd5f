// internal/usecase/stats_usecase.go
package usecase

import (
	"context"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/repository"
)

type StatsUsecase struct {
	orders   repository.OrderRepository
	location *time.Location
	now      func() time.Time
}

// NewStatsUsecase computes period boundaries in loc (UTC when nil).
func NewStatsUsecase(orders repository.OrderRepository, loc *time.Location) *StatsUsecase {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsUsecase{orders: orders, location: loc, now: time.Now}
}

func (uc *StatsUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

func (uc *StatsUsecase) Stats(ctx context.Context, period domain.StatsPeriod) (*domain.RechargeStats, error) {
	from, to := period.Range(uc.now().In(uc.location))
	stats, err := uc.orders.Stats(ctx, from, to)
	if err != nil {
		return nil, err
	}
	stats.Period = period
	return stats, nil
}

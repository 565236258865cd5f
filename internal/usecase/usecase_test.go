// internal/usecase/usecase_test.go
package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/exchange"
	"recharge-service/internal/repository"
	"recharge-service/internal/repository/sqlite"
	"recharge-service/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWallet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []*domain.SettlementNotice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice *domain.SettlementNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type fixture struct {
	store      *repository.Store
	allocator  *IdentifierAllocator
	rates      *exchange.Provider
	settings   *SettingsUsecase
	orders     *OrderUsecase
	settlement *SettlementUsecase
	balances   *BalanceUsecase
	stats      *StatsUsecase
	notifier   *recordingNotifier
	clock      *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "usecase.db"))
	require.NoError(t, err)
	store := sqlite.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{t: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)}

	rates := exchange.NewProvider(store.Rates, nil, nil, exchange.Options{
		USDTRate: decimal.RequireFromString("7.2"),
		TRXRate:  decimal.RequireFromString("0.75"),
		TTL:      5 * time.Minute,
	}, logger)
	rates.SetClock(clock.now)

	settings := NewSettingsUsecase(store.Settings, SettingsDefaults{
		MinAmount:       decimal.NewFromInt(10),
		OrderTTL:        30 * time.Minute,
		WalletAddress:   testWallet,
		VIPMonthlyPrice: decimal.NewFromInt(200),
	}, logger)

	allocator := NewIdentifierAllocator(store.Identifiers, 100, logger)
	notifier := &recordingNotifier{}

	orders := NewOrderUsecase(store.Orders, allocator, rates, settings, utils.NewIDGenerator(), decimal.NewFromInt(1_000_000), logger)
	orders.SetClock(clock.now)

	settlement := NewSettlementUsecase(store.Orders, rates, notifier, logger)
	settlement.SetClock(clock.now)

	stats := NewStatsUsecase(store.Orders, time.UTC)
	stats.SetClock(clock.now)

	return &fixture{
		store:      store,
		allocator:  allocator,
		rates:      rates,
		settings:   settings,
		orders:     orders,
		settlement: settlement,
		balances:   NewBalanceUsecase(store.Balances, store.VIP, logger),
		stats:      stats,
		notifier:   notifier,
		clock:      clock,
	}
}

// identityPerm makes the allocator try suffixes .01, .02, ... in order.
func identityPerm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func transferFor(order *domain.Order, txID string) *domain.Transfer {
	return &domain.Transfer{
		TxID:        txID,
		BlockNumber: 1000,
		Currency:    order.Currency,
		From:        "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8",
		To:          testWallet,
		Amount:      order.Amount,
	}
}

// internal/usecase/order_usecase_test.go
package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"recharge-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderDecoratesAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID:   1,
		Currency: domain.CurrencyUSDT,
		Amount:   decimal.NewFromInt(100),
		TTL:      30 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.Amount.GreaterThanOrEqual(dec("100.01")))
	assert.True(t, order.Amount.LessThanOrEqual(dec("100.99")))
	assert.True(t, order.Amount.Equal(order.Amount.Truncate(2)))
	assert.Equal(t, testWallet, order.WalletAddress)
	assert.Equal(t, f.clock.now().Add(30*time.Minute), order.ExpiresAt)
	assert.True(t, order.CreditValue.Equal(order.Amount.Mul(dec("7.2")).Round(2)))
	assert.Regexp(t, `^RO[0-9A-Z]{26}$`, order.OrderID)

	found, err := f.orders.FindPendingByAmount(ctx, domain.CurrencyUSDT, order.Amount)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.OrderID, found.OrderID)

	other := order.Amount.Add(dec("0.01"))
	if other.GreaterThan(dec("100.99")) {
		other = order.Amount.Sub(dec("0.01"))
	}
	found, err = f.orders.FindPendingByAmount(ctx, domain.CurrencyUSDT, other)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = f.orders.FindPendingByAmount(ctx, domain.CurrencyTRX, order.Amount)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		currency domain.Currency
		amount   string
		want     error
	}{
		{"zero", domain.CurrencyUSDT, "0", domain.ErrInvalidAmount},
		{"negative", domain.CurrencyUSDT, "-5", domain.ErrInvalidAmount},
		{"three decimals", domain.CurrencyUSDT, "10.005", domain.ErrInvalidAmount},
		{"below minimum", domain.CurrencyTRX, "9.99", domain.ErrAmountTooSmall},
		{"above maximum", domain.CurrencyTRX, "1000000.01", domain.ErrAmountTooLarge},
		{"unsupported currency", domain.Currency("BTC"), "50", domain.ErrUnsupportedCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
				UserID:   7,
				Currency: tt.currency,
				Amount:   dec(tt.amount),
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	active, err := f.orders.GetActiveOrder(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, active, "rejected requests leave no order behind")
}

func TestCreateOrderMinimumFromSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.Set(ctx, domain.SettingMinAmount, "1"))

	order, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 1, Currency: domain.CurrencyTRX, Amount: dec("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, f.clock.now().Add(30*time.Minute), order.ExpiresAt, "default ttl applies")
}

func TestCreateOrderOneActivePerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 3, Currency: domain.CurrencyUSDT, Amount: dec("20"),
	})
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 3, Currency: domain.CurrencyTRX, Amount: dec("20"),
	})
	assert.ErrorIs(t, err, domain.ErrActiveOrderExists)

	_, err = f.orders.CreateVIPOrder(ctx, &domain.CreateVIPOrderRequest{
		UserID: 3, Currency: domain.CurrencyUSDT, Months: 1,
	})
	assert.ErrorIs(t, err, domain.ErrActiveOrderExists)

	// once overdue, the old order is swept and a new one is accepted
	f.clock.advance(31 * time.Minute)
	second, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 3, Currency: domain.CurrencyTRX, Amount: dec("20"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.OrderID, second.OrderID)

	old, err := f.orders.GetOrder(ctx, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, old.Status)
}

func TestConcurrentOrdersSameBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		orders [2]*domain.Order
		errs   [2]error
	)
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orders[i], errs[i] = f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
				UserID: int64(100 + i), Currency: domain.CurrencyUSDT, Amount: dec("50"),
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.False(t, orders[0].Amount.Equal(orders[1].Amount))

	ok, err := f.orders.CancelOrder(ctx, orders[0].OrderID, orders[0].UserID)
	require.NoError(t, err)
	assert.True(t, ok)

	freed, err := f.store.Identifiers.Get(ctx, domain.CurrencyUSDT, orders[0].Amount)
	require.NoError(t, err)
	assert.False(t, freed.IsUsed)

	kept, err := f.store.Identifiers.Get(ctx, domain.CurrencyUSDT, orders[1].Amount)
	require.NoError(t, err)
	assert.True(t, kept.IsUsed)
	require.NotNil(t, kept.OrderID)
	assert.Equal(t, orders[1].OrderID, *kept.OrderID)

	stillPending, err := f.orders.FindPendingByAmount(ctx, domain.CurrencyUSDT, orders[1].Amount)
	require.NoError(t, err)
	require.NotNil(t, stillPending)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 8, Currency: domain.CurrencyTRX, Amount: dec("15"),
	})
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, order.OrderID, 9)
	assert.ErrorIs(t, err, domain.ErrNotOrderOwner)

	_, err = f.orders.CancelOrder(ctx, "RO-missing", 8)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	ok, err := f.orders.CancelOrder(ctx, order.OrderID, 8)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.orders.CancelOrder(ctx, order.OrderID, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := f.orders.GetActiveOrder(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestExpireReleasesForReallocation(t *testing.T) {
	f := newFixture(t)
	f.allocator.perm = identityPerm
	ctx := context.Background()

	first, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 1, Currency: domain.CurrencyUSDT, Amount: dec("100"), TTL: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "100.01", first.Amount.StringFixed(2))

	f.clock.advance(2 * time.Minute)

	active, err := f.orders.GetActiveOrder(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, active, "overdue orders are not reported as active")

	n, err := f.orders.ExpireAllOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.orders.GetOrder(ctx, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, expired.Status)

	second, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 2, Currency: domain.CurrencyUSDT, Amount: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100.01", second.Amount.StringFixed(2))

	n, err = f.orders.ExpireAllOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateVIPOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.CreateVIPOrder(ctx, &domain.CreateVIPOrderRequest{UserID: 4, Currency: domain.CurrencyUSDT, Months: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidMonths)
	_, err = f.orders.CreateVIPOrder(ctx, &domain.CreateVIPOrderRequest{UserID: 4, Currency: domain.CurrencyUSDT, Months: 13})
	assert.ErrorIs(t, err, domain.ErrInvalidMonths)

	order, err := f.orders.CreateVIPOrder(ctx, &domain.CreateVIPOrderRequest{
		UserID: 4, Currency: domain.CurrencyUSDT, Months: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderTypeVIP, order.Type)
	assert.Equal(t, 2, order.VIPMonths)
	assert.Regexp(t, `^VIP[0-9A-Z]{26}$`, order.OrderID)
	assert.Equal(t, "55.56", order.BaseAmount.StringFixed(2), "400 credits at 7.2 rounded up")
	assert.True(t, order.Amount.GreaterThan(order.BaseAmount))
	assert.True(t, order.Amount.LessThan(order.BaseAmount.Add(decimal.NewFromInt(1))))
	assert.True(t, order.CreditValue.Equal(decimal.NewFromInt(400)))
}

func TestAllocatorExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= suffixCount; i++ {
		amount := decimal.NewFromInt(30).Add(decimal.New(int64(i), -2))
		ok, err := f.store.Identifiers.Reserve(ctx, domain.CurrencyTRX, amount)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err := f.allocator.Allocate(ctx, decimal.NewFromInt(30), domain.CurrencyTRX)
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)

	_, err = f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 1, Currency: domain.CurrencyTRX, Amount: dec("30"),
	})
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)

	// the other currency has its own key space
	amount, err := f.allocator.Allocate(ctx, decimal.NewFromInt(30), domain.CurrencyUSDT)
	require.NoError(t, err)
	assert.True(t, amount.GreaterThan(decimal.NewFromInt(30)))

	require.NoError(t, f.allocator.Release(ctx, dec("30.42"), domain.CurrencyTRX))
	amount, err = f.allocator.Allocate(ctx, decimal.NewFromInt(30), domain.CurrencyTRX)
	require.NoError(t, err)
	assert.Equal(t, "30.42", amount.StringFixed(2))
}

func TestAllocatorConcurrentUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 40
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[string]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount, err := f.allocator.Allocate(ctx, decimal.NewFromInt(50), domain.CurrencyUSDT)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got[amount.StringFixed(2)]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, got, workers)
	for amount, n := range got {
		assert.Equal(t, 1, n, "amount %s handed out twice", amount)
	}
}

func TestExpireReclaimsOrphanedReservation(t *testing.T) {
	f := newFixture(t)
	f.allocator.perm = identityPerm
	ctx := context.Background()

	// reservations are stamped with the wall clock
	f.clock.t = time.Now().UTC()

	amount, err := f.allocator.Allocate(ctx, dec("100"), domain.CurrencyTRX)
	require.NoError(t, err)
	assert.Equal(t, "100.01", amount.StringFixed(2))

	f.clock.advance(10 * time.Minute)
	_, err = f.orders.ExpireAllOverdue(ctx)
	require.NoError(t, err)

	id, err := f.store.Identifiers.Get(ctx, domain.CurrencyTRX, amount)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.True(t, id.IsUsed, "a fresh reservation may still be bound to an order")

	f.clock.advance(7 * 24 * time.Hour)
	_, err = f.orders.ExpireAllOverdue(ctx)
	require.NoError(t, err)

	id, err = f.store.Identifiers.Get(ctx, domain.CurrencyTRX, amount)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.False(t, id.IsUsed)
	assert.Nil(t, id.OrderID)

	order, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 9, Currency: domain.CurrencyTRX, Amount: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100.01", order.Amount.StringFixed(2), "reclaimed suffix is reusable")
}

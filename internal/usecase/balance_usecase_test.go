// internal/usecase/balance_usecase_test.go
package usecase

import (
	"context"
	"testing"
	"time"

	"recharge-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	operator := int64(900)

	tests := []struct {
		name       string
		delta      string
		changeType domain.ChangeType
		want       error
	}{
		{"zero", "0", domain.ChangeTypeAdminCredit, domain.ErrInvalidAmount},
		{"sub cent", "0.001", domain.ChangeTypeAdminCredit, domain.ErrInvalidAmount},
		{"negative credit", "-5", domain.ChangeTypeAdminCredit, domain.ErrInvalidAmount},
		{"positive debit", "5", domain.ChangeTypeAdminDebit, domain.ErrInvalidAmount},
		{"recharge is not manual", "5", domain.ChangeTypeRecharge, domain.ErrInvalidAmount},
		{"underflow", "-1", domain.ChangeTypeAdminDebit, domain.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.balances.Adjust(ctx, 21, dec(tt.delta), tt.changeType, "test", &operator)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	log, err := f.balances.Adjust(ctx, 21, dec("100"), domain.ChangeTypeAdminCredit, "gift", &operator)
	require.NoError(t, err)
	assert.True(t, log.BalanceAfter.Equal(dec("100")))

	_, err = f.balances.Adjust(ctx, 21, dec("-100.01"), domain.ChangeTypeAdminDebit, "too much", &operator)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	log, err = f.balances.Adjust(ctx, 21, dec("-30"), domain.ChangeTypeConsume, "lookup", nil)
	require.NoError(t, err)
	assert.True(t, log.BalanceBefore.Equal(dec("100")))
	assert.True(t, log.BalanceAfter.Equal(dec("70")))

	bal, err := f.balances.Balance(ctx, 21)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("70")))
	assert.True(t, bal.TotalEarned.Equal(dec("100")))
	assert.True(t, bal.TotalSpent.Equal(dec("30")))

	logs, err := f.balances.Logs(ctx, 21, 1000)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "rejected adjustments leave no audit rows")

	m, err := f.balances.VIP(ctx, 21)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSettingsUsecase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", all[domain.SettingMinAmount])
	assert.Equal(t, "1800", all[domain.SettingOrderTimeout])
	assert.Equal(t, testWallet, all[domain.SettingWalletAddress])
	assert.Equal(t, "200", all[domain.SettingVIPMonthlyPrice])

	tests := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{"unknown key", "bot_token", "x", domain.ErrUnknownSetting},
		{"non numeric minimum", domain.SettingMinAmount, "ten", domain.ErrInvalidSetting},
		{"negative price", domain.SettingVIPMonthlyPrice, "-1", domain.ErrInvalidSetting},
		{"timeout too short", domain.SettingOrderTimeout, "30", domain.ErrInvalidSetting},
		{"timeout too long", domain.SettingOrderTimeout, "90000", domain.ErrInvalidSetting},
		{"bad wallet", domain.SettingWalletAddress, "T123", domain.ErrInvalidSetting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.settings.Set(ctx, tt.key, tt.value), tt.want)
		})
	}

	require.NoError(t, f.settings.Set(ctx, domain.SettingOrderTimeout, "600"))
	assert.Equal(t, 10*time.Minute, f.settings.OrderTTL(ctx))

	// raw hex is stored in base58 form
	require.NoError(t, f.settings.Set(ctx, domain.SettingWalletAddress, "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"))
	wallet, err := f.settings.Get(ctx, domain.SettingWalletAddress)
	require.NoError(t, err)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", wallet)

	require.NoError(t, f.settings.Set(ctx, domain.SettingVIPMonthlyPrice, " 150.50 "))
	assert.Equal(t, "150.5", f.settings.VIPMonthlyPrice(ctx).String())

	_, err = f.settings.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownSetting)
}

func TestStatsUsecase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	recharge, err := f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 1, Currency: domain.CurrencyUSDT, Amount: dec("10"),
	})
	require.NoError(t, err)
	vip, err := f.orders.CreateVIPOrder(ctx, &domain.CreateVIPOrderRequest{
		UserID: 2, Currency: domain.CurrencyTRX, Months: 1,
	})
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 3, Currency: domain.CurrencyUSDT, Amount: dec("20"),
	})
	require.NoError(t, err)

	for _, o := range []*domain.Order{recharge, vip} {
		res, err := f.settlement.SettleTransfer(ctx, transferFor(o, "tx-"+o.OrderID))
		require.NoError(t, err)
		require.True(t, res.Applied)
	}

	stats, err := f.stats.Stats(ctx, domain.StatsPeriodDay)
	require.NoError(t, err)
	assert.Equal(t, domain.StatsPeriodDay, stats.Period)
	assert.Equal(t, int64(2), stats.CompletedOrders)
	assert.Equal(t, int64(1), stats.RechargeOrders)
	assert.Equal(t, int64(1), stats.VIPOrders)
	assert.True(t, stats.AmountByCurrency[domain.CurrencyUSDT].Equal(recharge.Amount))
	assert.True(t, stats.AmountByCurrency[domain.CurrencyTRX].Equal(vip.Amount))
	wantCredits := recharge.Amount.Mul(dec("7.2")).Round(2).Add(dec("200"))
	assert.True(t, stats.TotalCredits.Equal(wantCredits))

	yesterday, err := f.stats.Stats(ctx, domain.StatsPeriodYesterday)
	require.NoError(t, err)
	assert.Zero(t, yesterday.CompletedOrders)

	f.clock.advance(24 * time.Hour)
	week, err := f.stats.Stats(ctx, domain.StatsPeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, int64(2), week.CompletedOrders)
}

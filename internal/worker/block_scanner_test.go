// internal/worker/block_scanner_test.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recharge-service/internal/chains/tron"
	"recharge-service/internal/domain"
	"recharge-service/internal/exchange"
	"recharge-service/internal/repository"
	"recharge-service/internal/repository/sqlite"
	"recharge-service/internal/usecase"
	"recharge-service/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	walletHex   = "41" + "1111111111111111111111111111111111111111"
	otherHex    = "41" + "3333333333333333333333333333333333333333"
	payerHex    = "41" + "2222222222222222222222222222222222222222"
	usdtHex     = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
	usdtAddress = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

type fakeLedger struct {
	mu      sync.Mutex
	tip     int64
	tipErr  error
	blocks  map[int64]*domain.Block
	fail    map[int64]error
	fetched []int64
}

func newFakeLedger(tip int64) *fakeLedger {
	return &fakeLedger{
		tip:    tip,
		blocks: make(map[int64]*domain.Block),
		fail:   make(map[int64]error),
	}
}

func (l *fakeLedger) LatestBlockNumber(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip, l.tipErr
}

func (l *fakeLedger) BlockByNumber(_ context.Context, n int64) (*domain.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = append(l.fetched, n)
	if err := l.fail[n]; err != nil {
		return nil, err
	}
	if b, ok := l.blocks[n]; ok {
		return b, nil
	}
	return &domain.Block{Number: n}, nil
}

func (l *fakeLedger) setTip(tip int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tip = tip
}

func (l *fakeLedger) setFail(n int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, n)
		return
	}
	l.fail[n] = err
}

func (l *fakeLedger) addTx(n int64, tx domain.RawTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.blocks[n]
	if !ok {
		b = &domain.Block{Number: n}
		l.blocks[n] = b
	}
	b.Transactions = append(b.Transactions, tx)
}

func (l *fakeLedger) fetchedBlocks() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.fetched...)
}

func (l *fakeLedger) resetFetched() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = nil
}

type recordingSettler struct {
	mu        sync.Mutex
	transfers []*domain.Transfer
	failTx    string
}

func (s *recordingSettler) SettleTransfer(_ context.Context, t *domain.Transfer) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.TxID == s.failTx {
		return nil, errors.New("database unavailable")
	}
	s.transfers = append(s.transfers, t)
	return nil, nil
}

func (s *recordingSettler) txIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.transfers))
	for _, t := range s.transfers {
		ids = append(ids, t.TxID)
	}
	return ids
}

func (s *recordingSettler) setFailTx(tx string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTx = tx
}

type countingExpirer struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExpirer) ExpireAllOverdue(context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return 0, nil
}

func (e *countingExpirer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type staticWallet struct {
	mu      sync.Mutex
	address string
}

func (w *staticWallet) WalletAddress(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.address, nil
}

func (w *staticWallet) set(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.address = address
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

func nativeTx(id, to string, sun int64) domain.RawTransaction {
	return domain.RawTransaction{
		TxID:   id,
		Result: domain.ContractResultSuccess,
		Contracts: []domain.RawContract{{
			Type:         domain.ContractTypeTransfer,
			OwnerAddress: payerHex,
			ToAddress:    to,
			Amount:       sun,
		}},
	}
}

func tokenTx(t *testing.T, id, to string, amount decimal.Decimal) domain.RawTransaction {
	t.Helper()
	data, err := tron.EncodeTransferData(to, amount.Shift(6).BigInt())
	require.NoError(t, err)
	return domain.RawTransaction{
		TxID:   id,
		Result: domain.ContractResultSuccess,
		Contracts: []domain.RawContract{{
			Type:            domain.ContractTypeTriggerSmart,
			OwnerAddress:    payerHex,
			ContractAddress: usdtHex,
			Data:            data,
		}},
	}
}

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "scanner.db"))
	require.NoError(t, err)
	store := sqlite.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func walletBase58(t *testing.T, raw string) string {
	t.Helper()
	addr, err := tron.HexToBase58(raw)
	require.NoError(t, err)
	return addr
}

type scannerHarness struct {
	ledger  *fakeLedger
	cursors repository.CursorRepository
	settler *recordingSettler
	expirer *countingExpirer
	wallet  *staticWallet
	scanner *BlockScanner
}

func newHarness(t *testing.T, tip int64, cfg ScannerConfig) *scannerHarness {
	t.Helper()
	h := &scannerHarness{
		ledger:  newFakeLedger(tip),
		cursors: newStore(t).Cursors,
		settler: &recordingSettler{},
		expirer: &countingExpirer{},
		wallet:  &staticWallet{address: walletBase58(t, walletHex)},
	}
	cfg.TokenContract = usdtAddress
	h.scanner = NewBlockScanner(h.ledger, h.cursors, h.settler, h.expirer, h.wallet, cfg, zap.NewNop())
	return h
}

// restart builds a fresh scanner over the same ledger and cursor store.
func (h *scannerHarness) restart(cfg ScannerConfig) {
	cfg.TokenContract = usdtAddress
	h.scanner = NewBlockScanner(h.ledger, h.cursors, h.settler, h.expirer, h.wallet, cfg, zap.NewNop())
}

func (h *scannerHarness) cursor(t *testing.T, c domain.Currency) int64 {
	t.Helper()
	height, found, err := h.cursors.Get(context.Background(), c)
	require.NoError(t, err)
	require.True(t, found)
	return height
}

func blockRange(from, to int64) []int64 {
	var out []int64
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

func TestFirstRunStartsBelowTip(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	h.ledger.addTx(999, nativeTx("old", walletHex, 10_000_000))
	h.ledger.addTx(1000, nativeTx("new", walletHex, 12_340_000))

	require.NoError(t, h.scanner.RunCycle(context.Background()))

	assert.Equal(t, []int64{1000}, h.ledger.fetchedBlocks())
	assert.Equal(t, []string{"new"}, h.settler.txIDs())
	assert.Equal(t, int64(1000), h.cursor(t, domain.CurrencyTRX))
	assert.Equal(t, int64(1000), h.cursor(t, domain.CurrencyUSDT))
	assert.Equal(t, 1, h.expirer.count())
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	h.ledger.resetFetched()
	h.ledger.setTip(1005)
	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Equal(t, blockRange(1001, 1005), h.ledger.fetchedBlocks())
	assert.Equal(t, int64(1005), h.cursor(t, domain.CurrencyTRX))

	// a lagging node reports an older tip
	h.ledger.resetFetched()
	h.ledger.setTip(1002)
	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Empty(t, h.ledger.fetchedBlocks())
	assert.Equal(t, int64(1005), h.cursor(t, domain.CurrencyTRX))
	assert.Equal(t, int64(1005), h.cursor(t, domain.CurrencyUSDT))
	assert.Equal(t, 3, h.expirer.count())
}

func TestFailedBlockFetchKeepsCursor(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	for n := int64(1001); n <= 1005; n++ {
		h.ledger.addTx(n, nativeTx(fmt.Sprintf("tx-%d", n), walletHex, n*1_000_000))
	}
	h.ledger.setTip(1005)
	h.ledger.setFail(1003, errors.New("timeout"))

	err := h.scanner.RunCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(1002), h.cursor(t, domain.CurrencyTRX))
	assert.Equal(t, []string{"tx-1001", "tx-1002"}, h.settler.txIDs())

	h.ledger.setFail(1003, nil)
	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Equal(t, int64(1005), h.cursor(t, domain.CurrencyTRX))
	assert.Equal(t, []string{"tx-1001", "tx-1002", "tx-1003", "tx-1004", "tx-1005"}, h.settler.txIDs())
}

func TestLatestBlockFailure(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	h.ledger.tipErr = errors.New("connection refused")

	require.Error(t, h.scanner.RunCycle(context.Background()))
	assert.Empty(t, h.ledger.fetchedBlocks())
	assert.Zero(t, h.expirer.count())

	_, found, err := h.cursors.Get(context.Background(), domain.CurrencyTRX)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResumeAfterCrashMidBatch(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	for n := int64(1001); n <= 1004; n++ {
		h.ledger.addTx(n, nativeTx(fmt.Sprintf("tx-%d", n), walletHex, n*1_000_000))
	}
	h.ledger.setTip(1004)
	h.settler.setFailTx("tx-1003")

	require.Error(t, h.scanner.RunCycle(ctx))
	assert.Equal(t, int64(1002), h.cursor(t, domain.CurrencyTRX))

	h.settler.setFailTx("")
	h.ledger.resetFetched()
	h.restart(ScannerConfig{})
	require.NoError(t, h.scanner.RunCycle(ctx))

	assert.Equal(t, []int64{1003, 1004}, h.ledger.fetchedBlocks())
	assert.Equal(t, []string{"tx-1001", "tx-1002", "tx-1003", "tx-1004"}, h.settler.txIDs())
	assert.Equal(t, int64(1004), h.cursor(t, domain.CurrencyTRX))
}

func TestMaxBlocksPerCycle(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{MaxBlocksPerCycle: 100})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	h.ledger.setTip(1250)
	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Equal(t, int64(1100), h.cursor(t, domain.CurrencyTRX))

	require.NoError(t, h.scanner.RunCycle(ctx))
	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Equal(t, int64(1250), h.cursor(t, domain.CurrencyUSDT))
}

func TestConfirmations(t *testing.T) {
	h := newHarness(t, 1020, ScannerConfig{Confirmations: 19})
	require.NoError(t, h.scanner.RunCycle(context.Background()))

	assert.Equal(t, []int64{1001}, h.ledger.fetchedBlocks())
	assert.Equal(t, int64(1001), h.cursor(t, domain.CurrencyTRX))
}

func TestLaggingCurrencyCursor(t *testing.T) {
	h := newHarness(t, 1002, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.cursors.Save(ctx, domain.CurrencyTRX, 995))
	require.NoError(t, h.cursors.Save(ctx, domain.CurrencyUSDT, 1000))

	h.ledger.addTx(998, nativeTx("trx-998", walletHex, 5_000_000))
	h.ledger.addTx(998, tokenTx(t, "usdt-998", walletHex, decimal.RequireFromString("5.01")))
	h.ledger.addTx(1001, tokenTx(t, "usdt-1001", walletHex, decimal.RequireFromString("6.02")))

	require.NoError(t, h.scanner.RunCycle(ctx))

	assert.Equal(t, blockRange(996, 1002), h.ledger.fetchedBlocks())
	assert.Equal(t, []string{"trx-998", "usdt-1001"}, h.settler.txIDs())
	assert.Equal(t, int64(1002), h.cursor(t, domain.CurrencyTRX))
	assert.Equal(t, int64(1002), h.cursor(t, domain.CurrencyUSDT))
}

func TestIgnoresForeignAndFailedTransfers(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	reverted := tokenTx(t, "reverted", walletHex, decimal.RequireFromString("9.99"))
	reverted.Result = "REVERT"
	h.ledger.addTx(1001, reverted)
	h.ledger.addTx(1001, nativeTx("elsewhere", otherHex, 9_990_000))
	h.ledger.addTx(1001, domain.RawTransaction{
		TxID: "short",
		Contracts: []domain.RawContract{{
			Type:            domain.ContractTypeTriggerSmart,
			ContractAddress: usdtHex,
			Data:            tron.TransferMethodID + "00",
		}},
	})
	h.ledger.setTip(1001)

	require.NoError(t, h.scanner.RunCycle(ctx))
	assert.Empty(t, h.settler.txIDs())
	assert.Equal(t, int64(1001), h.cursor(t, domain.CurrencyUSDT))
}

func TestWalletChangeRebuildsDecoder(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{})
	ctx := context.Background()
	require.NoError(t, h.scanner.RunCycle(ctx))

	h.ledger.addTx(1001, nativeTx("to-old", walletHex, 1_000_000))
	h.ledger.addTx(1002, nativeTx("to-new", otherHex, 2_000_000))
	h.ledger.setTip(1001)
	require.NoError(t, h.scanner.RunCycle(ctx))

	h.wallet.set(walletBase58(t, otherHex))
	h.ledger.setTip(1002)
	require.NoError(t, h.scanner.RunCycle(ctx))

	assert.Equal(t, []string{"to-old", "to-new"}, h.settler.txIDs())
}

func TestStartRunsUntilStopped(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{Interval: time.Hour})
	ticker := &manualTicker{ch: make(chan time.Time)}
	h.scanner.SetTickerFactory(func(time.Duration) Ticker { return ticker })

	go h.scanner.Start(context.Background())

	require.Eventually(t, func() bool { return h.expirer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.ledger.setTip(1003)
	ticker.ch <- time.Now()
	require.Eventually(t, func() bool { return h.expirer.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1003), h.cursor(t, domain.CurrencyTRX))

	h.scanner.Stop()
	h.scanner.Stop()
	select {
	case <-h.scanner.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	h := newHarness(t, 1000, ScannerConfig{Interval: time.Hour})
	h.scanner.SetTickerFactory(func(time.Duration) Ticker { return &manualTicker{ch: make(chan time.Time)} })

	ctx, cancel := context.WithCancel(context.Background())
	go h.scanner.Start(ctx)
	require.Eventually(t, func() bool { return h.expirer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-h.scanner.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestScannerSettlesDeposits(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	store := newStore(t)
	wallet := walletBase58(t, walletHex)

	rates := exchange.NewProvider(store.Rates, nil, nil, exchange.Options{
		USDTRate: decimal.RequireFromString("7.2"),
		TRXRate:  decimal.RequireFromString("0.75"),
		TTL:      time.Minute,
	}, logger)
	settings := usecase.NewSettingsUsecase(store.Settings, usecase.SettingsDefaults{
		MinAmount:       decimal.NewFromInt(10),
		OrderTTL:        30 * time.Minute,
		WalletAddress:   wallet,
		VIPMonthlyPrice: decimal.NewFromInt(200),
	}, logger)
	allocator := usecase.NewIdentifierAllocator(store.Identifiers, 100, logger)
	orders := usecase.NewOrderUsecase(store.Orders, allocator, rates, settings, utils.NewIDGenerator(), decimal.NewFromInt(1_000_000), logger)
	settlement := usecase.NewSettlementUsecase(store.Orders, rates, nopNotifier{}, logger)
	balances := usecase.NewBalanceUsecase(store.Balances, store.VIP, logger)

	usdtOrder, err := orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 7, Currency: domain.CurrencyUSDT, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	trxOrder, err := orders.CreateOrder(ctx, &domain.CreateOrderRequest{
		UserID: 8, Currency: domain.CurrencyTRX, Amount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	ledger := newFakeLedger(500)
	scanner := NewBlockScanner(ledger, store.Cursors, settlement, orders, settings,
		ScannerConfig{TokenContract: usdtAddress}, logger)
	require.NoError(t, scanner.RunCycle(ctx))

	ledger.addTx(501, tokenTx(t, "usdt-pay", walletHex, usdtOrder.Amount))
	ledger.addTx(502, nativeTx("trx-pay", walletHex, trxOrder.Amount.Shift(6).IntPart()))
	ledger.addTx(502, nativeTx("stray", walletHex, 1_230_000))
	ledger.setTip(502)
	require.NoError(t, scanner.RunCycle(ctx))

	got, err := orders.GetOrder(ctx, usdtOrder.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, "usdt-pay", *got.TxHash)

	got, err = orders.GetOrder(ctx, trxOrder.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)

	bal, err := balances.Balance(ctx, 7)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(usdtOrder.Amount.Mul(decimal.RequireFromString("7.2")).Round(2)), "got %s", bal.Balance)

	bal, err = balances.Balance(ctx, 8)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(trxOrder.Amount.Mul(decimal.RequireFromString("0.75")).Round(2)), "got %s", bal.Balance)

	// a replayed block settles nothing twice
	_, err = settlement.SettleTransfer(ctx, &domain.Transfer{
		TxID: "usdt-pay", Currency: domain.CurrencyUSDT, Amount: usdtOrder.Amount,
	})
	require.NoError(t, err)
	logs, err := balances.Logs(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *domain.SettlementNotice) error { return nil }

// internal/worker/block_scanner.go
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recharge-service/internal/chains/tron"
	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"
	"recharge-service/internal/repository"

	"go.uber.org/zap"
)

// Ticker drives the polling loop. Tests substitute a manual ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Settler settles a decoded transfer against a pending order.
type Settler interface {
	SettleTransfer(ctx context.Context, t *domain.Transfer) (*domain.SettlementResult, error)
}

// Expirer expires overdue pending orders once per cycle.
type Expirer interface {
	ExpireAllOverdue(ctx context.Context) (int, error)
}

// WalletSource resolves the receiving wallet; it may change at runtime.
type WalletSource interface {
	WalletAddress(ctx context.Context) (string, error)
}

type ScannerConfig struct {
	Interval          time.Duration
	BlockDelay        time.Duration
	MaxBlocksPerCycle int64
	Confirmations     int64
	TokenContract     string
}

// BlockScanner walks the ledger block by block and hands every decoded
// transfer to the settler. Each currency keeps its own cursor; a block is
// never settled twice for a currency whose cursor already covers it.
type BlockScanner struct {
	ledger   domain.Ledger
	cursors  repository.CursorRepository
	settler  Settler
	expirer  Expirer
	wallets  WalletSource
	cfg      ScannerConfig
	logger   *zap.Logger

	newTicker func(time.Duration) Ticker

	cycleMu sync.Mutex
	wallet  string
	decoder *tron.Decoder

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewBlockScanner(
	ledger domain.Ledger,
	cursors repository.CursorRepository,
	settler Settler,
	expirer Expirer,
	wallets WalletSource,
	cfg ScannerConfig,
	logger *zap.Logger,
) *BlockScanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxBlocksPerCycle <= 0 {
		cfg.MaxBlocksPerCycle = 100
	}
	if cfg.Confirmations < 0 {
		cfg.Confirmations = 0
	}
	return &BlockScanner{
		ledger:    ledger,
		cursors:   cursors,
		settler:   settler,
		expirer:   expirer,
		wallets:   wallets,
		cfg:       cfg,
		logger:    logger,
		newTicker: NewTicker,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *BlockScanner) SetTickerFactory(f func(time.Duration) Ticker) {
	s.newTicker = f
}

// Start runs one cycle immediately and then one per tick until ctx is
// cancelled or Stop is called. The block in flight always completes.
func (s *BlockScanner) Start(ctx context.Context) {
	defer close(s.done)

	s.logger.Info("Starting block scanner",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int64("confirmations", s.cfg.Confirmations))

	ticker := s.newTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ticker.C():
			s.runCycle(ctx)
		case <-s.stopChan:
			s.logger.Info("Stopping block scanner")
			return
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping block scanner")
			return
		}
	}
}

func (s *BlockScanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Done is closed once Start has returned.
func (s *BlockScanner) Done() <-chan struct{} {
	return s.done
}

func (s *BlockScanner) runCycle(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Warn("scan cycle failed, retrying next tick", zap.Error(err))
	}
}

// RunCycle scans every unseen confirmed block up to the per-cycle limit and
// then expires overdue orders. Cursors only advance past fully processed
// blocks.
func (s *BlockScanner) RunCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	tip, err := s.ledger.LatestBlockNumber(ctx)
	if err != nil {
		metrics.BlockFetchErrors.WithLabelValues("latest").Inc()
		return fmt.Errorf("failed to get latest block: %w", err)
	}
	target := tip - s.cfg.Confirmations

	var scanErr error
	if target > 0 {
		scanErr = s.scanTo(ctx, target)
	}

	if ctx.Err() == nil {
		if _, err := s.expirer.ExpireAllOverdue(ctx); err != nil {
			s.logger.Error("failed to expire overdue orders", zap.Error(err))
		}
	}
	return scanErr
}

func (s *BlockScanner) scanTo(ctx context.Context, target int64) error {
	decoder, err := s.decoderFor(ctx)
	if err != nil {
		return err
	}

	heights, err := s.loadCursors(ctx, target)
	if err != nil {
		return err
	}

	start := target + 1
	for _, h := range heights {
		if h+1 < start {
			start = h + 1
		}
	}
	end := min(target, start+s.cfg.MaxBlocksPerCycle-1)

	for n := start; n <= end; n++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.processBlock(context.WithoutCancel(ctx), decoder, n, heights); err != nil {
			return err
		}
		if n < end && s.cfg.BlockDelay > 0 {
			select {
			case <-time.After(s.cfg.BlockDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// loadCursors starts a missing cursor just below target so the first run
// does not walk the chain history.
func (s *BlockScanner) loadCursors(ctx context.Context, target int64) (map[domain.Currency]int64, error) {
	heights := make(map[domain.Currency]int64, len(domain.SupportedCurrencies))
	for _, c := range domain.SupportedCurrencies {
		h, found, err := s.cursors.Get(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s cursor: %w", c, err)
		}
		if !found {
			h = target - 1
			if err := s.cursors.Save(ctx, c, h); err != nil {
				return nil, fmt.Errorf("failed to init %s cursor: %w", c, err)
			}
			s.logger.Info("initialized scan cursor", zap.String("currency", c.String()), zap.Int64("height", h))
		}
		heights[c] = h
		metrics.ScanCursor.WithLabelValues(c.String()).Set(float64(h))
	}
	return heights, nil
}

func (s *BlockScanner) processBlock(ctx context.Context, decoder *tron.Decoder, n int64, heights map[domain.Currency]int64) error {
	started := time.Now()

	block, err := s.ledger.BlockByNumber(ctx, n)
	if err != nil {
		metrics.BlockFetchErrors.WithLabelValues("block").Inc()
		return fmt.Errorf("failed to fetch block %d: %w", n, err)
	}

	for _, t := range decoder.DecodeBlock(block) {
		if n <= heights[t.Currency] {
			continue
		}
		if _, err := s.settler.SettleTransfer(ctx, t); err != nil {
			return fmt.Errorf("failed to settle %s in block %d: %w", t.TxID, n, err)
		}
	}

	for _, c := range domain.SupportedCurrencies {
		if heights[c] >= n {
			continue
		}
		if err := s.cursors.Save(ctx, c, n); err != nil {
			return fmt.Errorf("failed to save %s cursor: %w", c, err)
		}
		heights[c] = n
		metrics.ScanCursor.WithLabelValues(c.String()).Set(float64(n))
	}

	metrics.BlocksScanned.Inc()
	metrics.BlockProcessingDuration.Observe(time.Since(started).Seconds())
	s.logger.Debug("block processed",
		zap.Int64("block", n),
		zap.Int("transactions", len(block.Transactions)))
	return nil
}

func (s *BlockScanner) decoderFor(ctx context.Context) (*tron.Decoder, error) {
	wallet, err := s.wallets.WalletAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet: %w", err)
	}
	if s.decoder != nil && wallet == s.wallet {
		return s.decoder, nil
	}

	decoder, err := tron.NewDecoder(wallet, s.cfg.TokenContract)
	if err != nil {
		return nil, err
	}
	if s.decoder != nil {
		s.logger.Info("receiving wallet changed", zap.String("wallet", wallet))
	}
	s.wallet, s.decoder = wallet, decoder
	return decoder, nil
}

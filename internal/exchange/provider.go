// internal/exchange/provider.go
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"
	"recharge-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TRXMarket is the feed symbol used to price TRX in USDT.
const TRXMarket = "TRXUSDT"

type Options struct {
	USDTRate    decimal.Decimal
	TRXRate     decimal.Decimal
	TTL         time.Duration
	FeedEnabled bool
}

type rateEntry struct {
	rate      decimal.Decimal
	source    domain.RateSource
	fetchedAt time.Time
	expiresAt time.Time
}

// Provider converts ledger units to internal credits.
//
// Resolution order per currency: administrative override, then for USDT the
// configured fixed rate, then for TRX the feed price times the USDT rate. A
// failed feed refresh falls back to the last known rate (or the configured
// TRX rate) and still re-arms the TTL.
type Provider struct {
	overrides repository.RateRepository
	feed      PriceFeed
	shared    SharedCache
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	feedEnabled bool
	entries     map[domain.Currency]*rateEntry
	lastKnown   map[domain.Currency]decimal.Decimal
}

// NewProvider builds a provider. feed and shared may be nil.
func NewProvider(overrides repository.RateRepository, feed PriceFeed, shared SharedCache, opts Options, logger *zap.Logger) *Provider {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	return &Provider{
		overrides:   overrides,
		feed:        feed,
		shared:      shared,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		feedEnabled: opts.FeedEnabled && feed != nil,
		entries:     make(map[domain.Currency]*rateEntry),
		lastKnown:   make(map[domain.Currency]decimal.Decimal),
	}
}

// SetClock replaces the time source.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Provider) GetRate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.resolveLocked(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return e.rate, nil
}

func (p *Provider) RateInfo(ctx context.Context, currency domain.Currency) (*domain.RateInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.resolveLocked(ctx, currency)
	if err != nil {
		return nil, err
	}
	return &domain.RateInfo{
		Currency:    currency,
		Rate:        e.rate,
		Source:      e.source,
		FetchedAt:   e.fetchedAt,
		ExpiresAt:   e.expiresAt,
		FeedEnabled: p.feedEnabled,
	}, nil
}

// ToCredits converts a ledger amount to credits at the current rate.
func (p *Provider) ToCredits(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	r, err := p.GetRate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r).Round(2), nil
}

// FromCredits prices credits in currency, rounded up to the settlement precision.
func (p *Provider) FromCredits(ctx context.Context, currency domain.Currency, credits decimal.Decimal) (decimal.Decimal, error) {
	r, err := p.GetRate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return credits.DivRound(r, 8).RoundCeil(domain.SettlementPrecision), nil
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

// SetFixedRate persists an override that takes effect immediately.
func (p *Provider) SetFixedRate(ctx context.Context, currency domain.Currency, rate decimal.Decimal) error {
	if !currency.Valid() {
		return domain.ErrUnsupportedCurrency
	}
	if !rate.IsPositive() {
		return domain.ErrInvalidRate
	}
	if err := p.overrides.SetOverride(ctx, currency, rate); err != nil {
		return err
	}
	p.invalidate(ctx, currency)
	p.logger.Info("fixed rate set", zap.String("currency", string(currency)), zap.String("rate", rate.String()))
	return nil
}

func (p *Provider) ClearFixedRate(ctx context.Context, currency domain.Currency) error {
	if !currency.Valid() {
		return domain.ErrUnsupportedCurrency
	}
	if err := p.overrides.ClearOverride(ctx, currency); err != nil {
		return err
	}
	p.invalidate(ctx, currency)
	p.logger.Info("fixed rate cleared", zap.String("currency", string(currency)))
	return nil
}

func (p *Provider) EnableFeed(ctx context.Context, enabled bool) error {
	if enabled && p.feed == nil {
		return domain.ErrFeedNotConfigured
	}
	p.mu.Lock()
	p.feedEnabled = enabled
	p.mu.Unlock()

	p.invalidate(ctx, domain.CurrencyTRX)
	return nil
}

func (p *Provider) FeedEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feedEnabled
}

// ClearCache drops every cached rate, local and shared.
func (p *Provider) ClearCache(ctx context.Context) {
	p.invalidate(ctx, domain.SupportedCurrencies...)
}

// invalidate drops currencies and anything derived from them. TRX is priced
// through USDT, so a USDT change also invalidates TRX.
func (p *Provider) invalidate(ctx context.Context, currencies ...domain.Currency) {
	drop := make([]domain.Currency, 0, len(currencies)+1)
	for _, c := range currencies {
		drop = append(drop, c)
		if c == domain.CurrencyUSDT {
			drop = append(drop, domain.CurrencyTRX)
		}
	}

	p.mu.Lock()
	for _, c := range drop {
		delete(p.entries, c)
	}
	p.mu.Unlock()

	if p.shared != nil {
		if err := p.shared.Delete(ctx, drop...); err != nil {
			p.logger.Warn("failed to clear shared rate cache", zap.Error(err))
		}
	}
}

// ============================================================================
// RESOLUTION
// ============================================================================

func (p *Provider) resolveLocked(ctx context.Context, currency domain.Currency) (*rateEntry, error) {
	if !currency.Valid() {
		return nil, domain.ErrUnsupportedCurrency
	}

	now := p.now()
	if e, ok := p.entries[currency]; ok && now.Before(e.expiresAt) {
		return e, nil
	}

	e := &rateEntry{fetchedAt: now, expiresAt: now.Add(p.opts.TTL)}

	// nothing is cached on a failed read
	override, err := p.overrides.GetOverride(ctx, currency)
	if err != nil {
		p.logger.Warn("failed to read rate override", zap.String("currency", string(currency)), zap.Error(err))
		return nil, fmt.Errorf("read %s rate override: %w", currency, err)
	}

	switch {
	case override != nil:
		e.rate, e.source = override.Rate, domain.RateSourceOverride
	case currency == domain.CurrencyUSDT:
		e.rate, e.source = p.opts.USDTRate, domain.RateSourceFixed
	case !p.feedEnabled:
		e.rate, e.source = p.opts.TRXRate, domain.RateSourceFixed
	default:
		usdt, err := p.resolveLocked(ctx, domain.CurrencyUSDT)
		if err != nil {
			return nil, err
		}
		e.rate, e.source = p.feedRate(ctx, currency, usdt.rate)
	}

	p.entries[currency] = e
	if e.source != domain.RateSourceFallback {
		p.lastKnown[currency] = e.rate
	}
	return e, nil
}

func (p *Provider) feedRate(ctx context.Context, currency domain.Currency, usdtRate decimal.Decimal) (decimal.Decimal, domain.RateSource) {
	if p.shared != nil {
		cached, err := p.shared.Get(ctx, currency)
		if err != nil {
			p.logger.Warn("shared rate cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached.Rate, domain.RateSourceFeed
		}
	}

	price, err := p.feed.Price(ctx, TRXMarket)
	if err != nil {
		metrics.RateRefreshFailures.WithLabelValues(string(currency)).Inc()
		fallback, ok := p.lastKnown[currency]
		if !ok {
			fallback = p.opts.TRXRate
		}
		p.logger.Warn("price feed refresh failed, using fallback rate",
			zap.String("currency", string(currency)),
			zap.String("fallback", fallback.String()),
			zap.Error(err),
		)
		return fallback, domain.RateSourceFallback
	}

	r := price.Mul(usdtRate).Round(6)
	if p.shared != nil {
		if err := p.shared.Set(ctx, currency, &CachedRate{Rate: r, FetchedAt: p.now()}, p.opts.TTL); err != nil {
			p.logger.Warn("shared rate cache write failed", zap.Error(err))
		}
	}
	return r, domain.RateSourceFeed
}

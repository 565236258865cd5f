// internal/usecase/settings_usecase.go
package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"recharge-service/internal/chains/tron"
	"recharge-service/internal/domain"
	"recharge-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	minOrderTimeout = time.Minute
	maxOrderTimeout = 24 * time.Hour
)

// SettingsDefaults are the env-configured values used until an admin stores
// an override in system_config.
type SettingsDefaults struct {
	MinAmount       decimal.Decimal
	OrderTTL        time.Duration
	WalletAddress   string
	VIPMonthlyPrice decimal.Decimal
}

type SettingsUsecase struct {
	repo     repository.SettingsRepository
	defaults SettingsDefaults
	logger   *zap.Logger
}

func NewSettingsUsecase(repo repository.SettingsRepository, defaults SettingsDefaults, logger *zap.Logger) *SettingsUsecase {
	return &SettingsUsecase{repo: repo, defaults: defaults, logger: logger}
}

func (uc *SettingsUsecase) MinAmount(ctx context.Context) decimal.Decimal {
	if v, ok := uc.lookup(ctx, domain.SettingMinAmount); ok {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			return d
		}
	}
	return uc.defaults.MinAmount
}

func (uc *SettingsUsecase) OrderTTL(ctx context.Context) time.Duration {
	if v, ok := uc.lookup(ctx, domain.SettingOrderTimeout); ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return uc.defaults.OrderTTL
}

func (uc *SettingsUsecase) WalletAddress(ctx context.Context) (string, error) {
	if v, ok := uc.lookup(ctx, domain.SettingWalletAddress); ok {
		return v, nil
	}
	return uc.defaults.WalletAddress, nil
}

func (uc *SettingsUsecase) VIPMonthlyPrice(ctx context.Context) decimal.Decimal {
	if v, ok := uc.lookup(ctx, domain.SettingVIPMonthlyPrice); ok {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			return d
		}
	}
	return uc.defaults.VIPMonthlyPrice
}

// Get returns the effective value of key.
func (uc *SettingsUsecase) Get(ctx context.Context, key string) (string, error) {
	if !domain.IsKnownSetting(key) {
		return "", domain.ErrUnknownSetting
	}
	all, err := uc.All(ctx)
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// Set validates and stores an override. Wallet addresses are stored in
// canonical base58 form.
func (uc *SettingsUsecase) Set(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)

	switch key {
	case domain.SettingMinAmount, domain.SettingVIPMonthlyPrice:
		d, err := decimal.NewFromString(value)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("%w: %s must be a positive number", domain.ErrInvalidSetting, key)
		}
		value = d.String()
	case domain.SettingOrderTimeout:
		secs, err := strconv.ParseInt(value, 10, 64)
		ttl := time.Duration(secs) * time.Second
		if err != nil || ttl < minOrderTimeout || ttl > maxOrderTimeout {
			return fmt.Errorf("%w: %s must be between %d and %d seconds",
				domain.ErrInvalidSetting, key, int(minOrderTimeout.Seconds()), int(maxOrderTimeout.Seconds()))
		}
	case domain.SettingWalletAddress:
		raw, err := tron.NormalizeHex(value)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidSetting, err)
		}
		if value, err = tron.HexToBase58(raw); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidSetting, err)
		}
	default:
		return domain.ErrUnknownSetting
	}

	if err := uc.repo.Set(ctx, key, value); err != nil {
		return err
	}
	uc.logger.Info("setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

// All returns every known setting with defaults filled in.
func (uc *SettingsUsecase) All(ctx context.Context) (map[string]string, error) {
	stored, err := uc.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	wallet, _ := uc.WalletAddress(ctx)
	out := map[string]string{
		domain.SettingMinAmount:       uc.MinAmount(ctx).String(),
		domain.SettingOrderTimeout:    strconv.FormatInt(int64(uc.OrderTTL(ctx).Seconds()), 10),
		domain.SettingWalletAddress:   wallet,
		domain.SettingVIPMonthlyPrice: uc.VIPMonthlyPrice(ctx).String(),
	}
	for k, v := range stored {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}
	return out, nil
}

func (uc *SettingsUsecase) lookup(ctx context.Context, key string) (string, bool) {
	v, found, err := uc.repo.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("failed to read setting, using default", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, found && v != ""
}

// internal/repository/postgres/config_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"recharge-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type RateRepository struct {
	pool *pgxpool.Pool
}

func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

func (r *RateRepository) GetOverride(ctx context.Context, currency domain.Currency) (*domain.RateOverride, error) {
	var rate string
	o := &domain.RateOverride{Currency: currency}
	err := r.pool.QueryRow(ctx,
		`SELECT rate::text, updated_at FROM rate_overrides WHERE currency = $1`,
		string(currency)).Scan(&rate, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate override: %w", err)
	}
	if o.Rate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *RateRepository) SetOverride(ctx context.Context, currency domain.Currency, rate decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rate_overrides (currency, rate, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (currency) DO UPDATE SET rate = EXCLUDED.rate, updated_at = NOW()
	`, string(currency), rate.String())
	if err != nil {
		return fmt.Errorf("failed to set rate override: %w", err)
	}
	return nil
}

func (r *RateRepository) ClearOverride(ctx context.Context, currency domain.Currency) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rate_overrides WHERE currency = $1`, string(currency)); err != nil {
		return fmt.Errorf("failed to clear rate override: %w", err)
	}
	return nil
}

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (r *SettingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

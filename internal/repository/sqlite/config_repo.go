// internal/repository/sqlite/config_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recharge-service/internal/domain"

	"github.com/shopspring/decimal"
)

type RateRepository struct {
	db *sql.DB
}

func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

func (r *RateRepository) GetOverride(ctx context.Context, currency domain.Currency) (*domain.RateOverride, error) {
	var (
		rate      string
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT rate, updated_at FROM rate_overrides WHERE currency = ?1`,
		string(currency)).Scan(&rate, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate override: %w", err)
	}

	o := &domain.RateOverride{Currency: currency, UpdatedAt: fromMillis(updatedAt)}
	if o.Rate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *RateRepository) SetOverride(ctx context.Context, currency domain.Currency, rate decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_overrides (currency, rate, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT (currency) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at
	`, string(currency), rate.String(), millis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set rate override: %w", err)
	}
	return nil
}

func (r *RateRepository) ClearOverride(ctx context.Context, currency domain.Currency) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rate_overrides WHERE currency = ?1`, string(currency)); err != nil {
		return fmt.Errorf("failed to clear rate override: %w", err)
	}
	return nil
}

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, millis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (r *SettingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM system_config`)
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

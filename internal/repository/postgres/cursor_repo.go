// internal/repository/postgres/cursor_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"recharge-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CursorRepository struct {
	pool *pgxpool.Pool
}

func NewCursorRepository(pool *pgxpool.Pool) *CursorRepository {
	return &CursorRepository{pool: pool}
}

func (r *CursorRepository) Get(ctx context.Context, currency domain.Currency) (int64, bool, error) {
	var height int64
	err := r.pool.QueryRow(ctx,
		`SELECT block_number FROM block_scan_cursors WHERE currency = $1`,
		string(currency)).Scan(&height)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	return height, true, nil
}

func (r *CursorRepository) Save(ctx context.Context, currency domain.Currency, height int64) error {
	query := `
		INSERT INTO block_scan_cursors (currency, block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (currency) DO UPDATE
		SET block_number = GREATEST(block_scan_cursors.block_number, EXCLUDED.block_number),
		    updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, string(currency), height); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// internal/repository/sqlite/cursor_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recharge-service/internal/domain"
)

type CursorRepository struct {
	db *sql.DB
}

func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

func (r *CursorRepository) Get(ctx context.Context, currency domain.Currency) (int64, bool, error) {
	var height int64
	err := r.db.QueryRowContext(ctx,
		`SELECT block_number FROM block_scan_cursors WHERE currency = ?1`,
		string(currency)).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
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
		VALUES (?1, ?2, ?3)
		ON CONFLICT (currency) DO UPDATE
		SET block_number = MAX(block_scan_cursors.block_number, excluded.block_number),
		    updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(currency), height, millis(time.Now())); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

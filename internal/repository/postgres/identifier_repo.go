// internal/repository/postgres/identifier_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recharge-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type IdentifierRepository struct {
	pool *pgxpool.Pool
}

func NewIdentifierRepository(pool *pgxpool.Pool) *IdentifierRepository {
	return &IdentifierRepository{pool: pool}
}

// Reserve relies on ON CONFLICT ... WHERE is_used = FALSE: concurrent
// reservations of the same key serialize on the row and only one sees it free.
func (r *IdentifierRepository) Reserve(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (bool, error) {
	query := `
		INSERT INTO amount_identifiers (currency, amount, is_used, order_id, reserved_at, released_at)
		VALUES ($1, $2, TRUE, NULL, NOW(), NULL)
		ON CONFLICT (currency, amount) DO UPDATE
		SET is_used = TRUE, order_id = NULL, reserved_at = NOW(), released_at = NULL
		WHERE amount_identifiers.is_used = FALSE
		RETURNING currency
	`

	var got string
	err := r.pool.QueryRow(ctx, query, string(currency), amount.StringFixed(domain.SettlementPrecision)).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve identifier: %w", err)
	}
	return true, nil
}

func (r *IdentifierRepository) Release(ctx context.Context, currency domain.Currency, amount decimal.Decimal) error {
	query := `
		UPDATE amount_identifiers
		SET is_used = FALSE, order_id = NULL, released_at = NOW()
		WHERE currency = $1 AND amount = $2 AND is_used = TRUE
	`
	if _, err := r.pool.Exec(ctx, query, string(currency), amount.StringFixed(domain.SettlementPrecision)); err != nil {
		return fmt.Errorf("failed to release identifier: %w", err)
	}
	return nil
}

// Get returns nil when the amount was never reserved.
func (r *IdentifierRepository) Get(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.AmountIdentifier, error) {
	query := `
		SELECT currency, amount::text, is_used, order_id, reserved_at, released_at
		FROM amount_identifiers
		WHERE currency = $1 AND amount = $2
	`

	var (
		cur, amt string
		id       domain.AmountIdentifier
	)
	err := r.pool.QueryRow(ctx, query, string(currency), amount.StringFixed(domain.SettlementPrecision)).
		Scan(&cur, &amt, &id.IsUsed, &id.OrderID, &id.ReservedAt, &id.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identifier: %w", err)
	}

	id.Currency = domain.Currency(cur)
	if id.Amount, err = parseDecimal(amt); err != nil {
		return nil, err
	}
	return &id, nil
}

// ReleaseOrphaned reclaims reservations left behind when order creation
// failed after Reserve committed.
func (r *IdentifierRepository) ReleaseOrphaned(ctx context.Context, reservedBefore time.Time) (int64, error) {
	query := `
		UPDATE amount_identifiers
		SET is_used = FALSE, released_at = NOW()
		WHERE is_used = TRUE AND order_id IS NULL AND reserved_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, reservedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release orphaned identifiers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// releaseByOrder frees the identifier bound to orderIDs inside tx.
func releaseByOrder(ctx context.Context, tx pgx.Tx, orderIDs ...string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	query := `
		UPDATE amount_identifiers
		SET is_used = FALSE, order_id = NULL, released_at = NOW()
		WHERE order_id = ANY($1)
	`
	if _, err := tx.Exec(ctx, query, orderIDs); err != nil {
		return fmt.Errorf("failed to release identifiers: %w", err)
	}
	return nil
}

// internal/repository/sqlite/identifier_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recharge-service/internal/domain"

	"github.com/shopspring/decimal"
)

type IdentifierRepository struct {
	db *sql.DB
}

func NewIdentifierRepository(db *sql.DB) *IdentifierRepository {
	return &IdentifierRepository{db: db}
}

func (r *IdentifierRepository) Reserve(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (bool, error) {
	query := `
		INSERT INTO amount_identifiers (currency, amount, is_used, order_id, reserved_at, released_at)
		VALUES (?1, ?2, 1, NULL, ?3, NULL)
		ON CONFLICT (currency, amount) DO UPDATE
		SET is_used = 1, order_id = NULL, reserved_at = excluded.reserved_at, released_at = NULL
		WHERE amount_identifiers.is_used = 0
		RETURNING currency
	`

	var got string
	err := r.db.QueryRowContext(ctx, query,
		string(currency), amount.StringFixed(domain.SettlementPrecision), millis(time.Now()),
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
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
		SET is_used = 0, order_id = NULL, released_at = ?3
		WHERE currency = ?1 AND amount = ?2 AND is_used = 1
	`
	if _, err := r.db.ExecContext(ctx, query,
		string(currency), amount.StringFixed(domain.SettlementPrecision), millis(time.Now())); err != nil {
		return fmt.Errorf("failed to release identifier: %w", err)
	}
	return nil
}

func (r *IdentifierRepository) Get(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.AmountIdentifier, error) {
	query := `
		SELECT currency, amount, is_used, order_id, reserved_at, released_at
		FROM amount_identifiers
		WHERE currency = ?1 AND amount = ?2
	`

	var (
		cur, amt   string
		orderID    sql.NullString
		reservedAt int64
		releasedAt sql.NullInt64
		id         domain.AmountIdentifier
	)
	err := r.db.QueryRowContext(ctx, query, string(currency), amount.StringFixed(domain.SettlementPrecision)).
		Scan(&cur, &amt, &id.IsUsed, &orderID, &reservedAt, &releasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identifier: %w", err)
	}

	id.Currency = domain.Currency(cur)
	if id.Amount, err = parseDecimal(amt); err != nil {
		return nil, err
	}
	if orderID.Valid {
		id.OrderID = &orderID.String
	}
	id.ReservedAt = fromMillis(reservedAt)
	id.ReleasedAt = fromNullMillis(releasedAt)
	return &id, nil
}

func (r *IdentifierRepository) ReleaseOrphaned(ctx context.Context, reservedBefore time.Time) (int64, error) {
	query := `
		UPDATE amount_identifiers
		SET is_used = 0, released_at = ?2
		WHERE is_used = 1 AND order_id IS NULL AND reserved_at < ?1
	`
	res, err := r.db.ExecContext(ctx, query, millis(reservedBefore), millis(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to release orphaned identifiers: %w", err)
	}
	return res.RowsAffected()
}

func releaseByOrder(ctx context.Context, q queryer, now time.Time, orderIDs ...string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	args := make([]any, 0, len(orderIDs)+1)
	args = append(args, millis(now))
	marks := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		args = append(args, id)
		marks = append(marks, "?")
	}

	query := `
		UPDATE amount_identifiers
		SET is_used = 0, order_id = NULL, released_at = ?
		WHERE order_id IN (` + strings.Join(marks, ", ") + `)
	`
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release identifiers: %w", err)
	}
	return nil
}

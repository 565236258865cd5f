// internal/repository/postgres/balance_repo.go
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

type BalanceRepository struct {
	pool *pgxpool.Pool
}

func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

func (r *BalanceRepository) Get(ctx context.Context, userID int64) (*domain.Balance, error) {
	query := `
		SELECT balance::text, total_earned::text, total_spent::text, updated_at
		FROM user_balances
		WHERE user_id = $1
	`

	var balance, earned, spent string
	b := &domain.Balance{UserID: userID}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&balance, &earned, &spent, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.Balance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	if b.Balance, err = parseDecimal(balance); err != nil {
		return nil, err
	}
	if b.TotalEarned, err = parseDecimal(earned); err != nil {
		return nil, err
	}
	if b.TotalSpent, err = parseDecimal(spent); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BalanceRepository) Apply(ctx context.Context, change *domain.BalanceChange) (*domain.BalanceLog, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	log, err := applyBalanceChange(ctx, tx, change, time.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit balance change: %w", err)
	}
	return log, nil
}

func (r *BalanceRepository) Logs(ctx context.Context, userID int64, limit int) ([]*domain.BalanceLog, error) {
	query := `
		SELECT id, user_id, amount::text, balance_before::text, balance_after::text,
		       change_type, description, operator_id, reference, created_at
		FROM balance_logs
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.BalanceLog
	for rows.Next() {
		var (
			l                     domain.BalanceLog
			changeType            string
			amount, before, after string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &amount, &before, &after,
			&changeType, &l.Description, &l.OperatorID, &l.Reference, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance log: %w", err)
		}
		l.ChangeType = domain.ChangeType(changeType)
		if l.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if l.BalanceBefore, err = parseDecimal(before); err != nil {
			return nil, err
		}
		if l.BalanceAfter, err = parseDecimal(after); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// applyBalanceChange locks the balance row, rejects underflow before any
// write and appends the audit row.
func applyBalanceChange(ctx context.Context, tx pgx.Tx, change *domain.BalanceChange, now time.Time) (*domain.BalanceLog, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_balances (user_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, change.UserID, now); err != nil {
		return nil, fmt.Errorf("failed to init balance: %w", err)
	}

	var balanceStr string
	if err := tx.QueryRow(ctx,
		`SELECT balance::text FROM user_balances WHERE user_id = $1 FOR UPDATE`,
		change.UserID).Scan(&balanceStr); err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	before, err := parseDecimal(balanceStr)
	if err != nil {
		return nil, err
	}

	after := before.Add(change.Amount)
	if after.IsNegative() {
		return nil, domain.ErrInsufficientBalance
	}

	earned, spent := decimal.Zero, decimal.Zero
	if change.Amount.IsPositive() {
		earned = change.Amount
	} else {
		spent = change.Amount.Neg()
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_balances
		SET balance = $2, total_earned = total_earned + $3, total_spent = total_spent + $4, updated_at = $5
		WHERE user_id = $1
	`, change.UserID, after.StringFixed(2), earned.StringFixed(2), spent.StringFixed(2), now); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	log := &domain.BalanceLog{
		UserID:        change.UserID,
		Amount:        change.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ChangeType:    change.ChangeType,
		Description:   change.Description,
		OperatorID:    change.OperatorID,
		Reference:     change.Reference,
		CreatedAt:     now,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO balance_logs (
			user_id, amount, balance_before, balance_after,
			change_type, description, operator_id, reference, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, change.UserID, change.Amount.StringFixed(2), before.StringFixed(2), after.StringFixed(2),
		string(change.ChangeType), change.Description, change.OperatorID, change.Reference, now,
	).Scan(&log.ID); err != nil {
		return nil, fmt.Errorf("failed to write balance log: %w", err)
	}
	return log, nil
}

// ============================================================================
// VIP
// ============================================================================

type VIPRepository struct {
	pool *pgxpool.Pool
}

func NewVIPRepository(pool *pgxpool.Pool) *VIPRepository {
	return &VIPRepository{pool: pool}
}

func (r *VIPRepository) Get(ctx context.Context, userID int64) (*domain.VIPMembership, error) {
	m := &domain.VIPMembership{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT expires_at, updated_at FROM vip_memberships WHERE user_id = $1`,
		userID).Scan(&m.ExpiresAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vip membership: %w", err)
	}
	return m, nil
}

// extendVIP adds months from the later of now and the current expiry.
func extendVIP(ctx context.Context, tx pgx.Tx, userID int64, months int, now time.Time) (time.Time, error) {
	start := now
	var current time.Time
	err := tx.QueryRow(ctx,
		`SELECT expires_at FROM vip_memberships WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return time.Time{}, fmt.Errorf("failed to lock vip membership: %w", err)
	case current.After(now):
		start = current
	}

	expiresAt := start.AddDate(0, 0, domain.VIPDaysPerMonth*months)
	if _, err := tx.Exec(ctx, `
		INSERT INTO vip_memberships (user_id, expires_at, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`, userID, expiresAt, now); err != nil {
		return time.Time{}, fmt.Errorf("failed to extend vip membership: %w", err)
	}
	return expiresAt, nil
}

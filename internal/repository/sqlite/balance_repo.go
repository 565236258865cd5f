// internal/repository/sqlite/balance_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recharge-service/internal/domain"
)

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Get(ctx context.Context, userID int64) (*domain.Balance, error) {
	var (
		balance, earned, spent string
		updated                int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT balance, total_earned, total_spent, updated_at
		FROM user_balances
		WHERE user_id = ?1
	`, userID).Scan(&balance, &earned, &spent, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Balance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	b := &domain.Balance{UserID: userID, UpdatedAt: fromMillis(updated)}
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	log, err := applyBalanceChange(ctx, tx, change, time.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit balance change: %w", err)
	}
	return log, nil
}

func (r *BalanceRepository) Logs(ctx context.Context, userID int64, limit int) ([]*domain.BalanceLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, balance_before, balance_after,
		       change_type, description, operator_id, reference, created_at
		FROM balance_logs
		WHERE user_id = ?1
		ORDER BY id DESC
		LIMIT ?2
	`, userID, limit)
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
			operator              sql.NullInt64
			created               int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &amount, &before, &after,
			&changeType, &l.Description, &operator, &l.Reference, &created); err != nil {
			return nil, fmt.Errorf("failed to scan balance log: %w", err)
		}
		l.ChangeType = domain.ChangeType(changeType)
		l.CreatedAt = fromMillis(created)
		if operator.Valid {
			l.OperatorID = &operator.Int64
		}
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

// applyBalanceChange runs inside tx; the single pooled connection serializes
// writers so no row lock is needed.
func applyBalanceChange(ctx context.Context, tx *sql.Tx, change *domain.BalanceChange, now time.Time) (*domain.BalanceLog, error) {
	var balanceStr, earnedStr, spentStr string
	err := tx.QueryRowContext(ctx,
		`SELECT balance, total_earned, total_spent FROM user_balances WHERE user_id = ?1`,
		change.UserID).Scan(&balanceStr, &earnedStr, &spentStr)
	if errors.Is(err, sql.ErrNoRows) {
		balanceStr, earnedStr, spentStr = "0", "0", "0"
	} else if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	before, err := parseDecimal(balanceStr)
	if err != nil {
		return nil, err
	}
	earned, err := parseDecimal(earnedStr)
	if err != nil {
		return nil, err
	}
	spent, err := parseDecimal(spentStr)
	if err != nil {
		return nil, err
	}

	after := before.Add(change.Amount)
	if after.IsNegative() {
		return nil, domain.ErrInsufficientBalance
	}
	if change.Amount.IsPositive() {
		earned = earned.Add(change.Amount)
	} else {
		spent = spent.Sub(change.Amount)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, balance, total_earned, total_spent, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = excluded.balance, total_earned = excluded.total_earned,
		    total_spent = excluded.total_spent, updated_at = excluded.updated_at
	`, change.UserID, after.StringFixed(2), earned.StringFixed(2), spent.StringFixed(2), millis(now)); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	var operator sql.NullInt64
	if change.OperatorID != nil {
		operator = sql.NullInt64{Int64: *change.OperatorID, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO balance_logs (
			user_id, amount, balance_before, balance_after,
			change_type, description, operator_id, reference, created_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)
	`, change.UserID, change.Amount.StringFixed(2), before.StringFixed(2), after.StringFixed(2),
		string(change.ChangeType), change.Description, operator, change.Reference, millis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to write balance log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read balance log id: %w", err)
	}

	return &domain.BalanceLog{
		ID:            id,
		UserID:        change.UserID,
		Amount:        change.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ChangeType:    change.ChangeType,
		Description:   change.Description,
		OperatorID:    change.OperatorID,
		Reference:     change.Reference,
		CreatedAt:     now,
	}, nil
}

type VIPRepository struct {
	db *sql.DB
}

func NewVIPRepository(db *sql.DB) *VIPRepository {
	return &VIPRepository{db: db}
}

func (r *VIPRepository) Get(ctx context.Context, userID int64) (*domain.VIPMembership, error) {
	var expires, updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT expires_at, updated_at FROM vip_memberships WHERE user_id = ?1`,
		userID).Scan(&expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vip membership: %w", err)
	}
	return &domain.VIPMembership{UserID: userID, ExpiresAt: fromMillis(expires), UpdatedAt: fromMillis(updated)}, nil
}

func extendVIP(ctx context.Context, tx *sql.Tx, userID int64, months int, now time.Time) (time.Time, error) {
	start := now
	var current int64
	err := tx.QueryRowContext(ctx,
		`SELECT expires_at FROM vip_memberships WHERE user_id = ?1`, userID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return time.Time{}, fmt.Errorf("failed to read vip membership: %w", err)
	case fromMillis(current).After(now):
		start = fromMillis(current)
	}

	expiresAt := start.AddDate(0, 0, domain.VIPDaysPerMonth*months)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vip_memberships (user_id, expires_at, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = excluded.expires_at, updated_at = excluded.updated_at
	`, userID, millis(expiresAt), millis(now)); err != nil {
		return time.Time{}, fmt.Errorf("failed to extend vip membership: %w", err)
	}
	return expiresAt, nil
}

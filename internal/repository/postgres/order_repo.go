// internal/repository/postgres/order_repo.go
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

const orderColumns = `
	order_id, user_id, order_type, currency,
	base_amount::text, amount::text, received_amount::text, credit_value::text,
	vip_months, status, wallet_address, tx_hash,
	created_at, expires_at, completed_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// ============================================================================
// CREATE / LOOKUP
// ============================================================================

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO recharge_orders (
			order_id, user_id, order_type, currency,
			base_amount, amount, credit_value, vip_months,
			status, wallet_address, created_at, expires_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $11
		)
	`
	_, err = tx.Exec(ctx, query,
		order.OrderID,
		order.UserID,
		string(order.Type),
		string(order.Currency),
		order.BaseAmount.StringFixed(domain.SettlementPrecision),
		order.Amount.StringFixed(domain.SettlementPrecision),
		order.CreditValue.StringFixed(2),
		order.VIPMonths,
		string(domain.OrderStatusPending),
		order.WalletAddress,
		order.CreatedAt,
		order.ExpiresAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "ux_recharge_orders_pending_user" {
			return domain.ErrActiveOrderExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	bind := `
		UPDATE amount_identifiers SET order_id = $1
		WHERE currency = $2 AND amount = $3 AND is_used = TRUE AND order_id IS NULL
	`
	tag, err := tx.Exec(ctx, bind, order.OrderID, string(order.Currency), order.Amount.StringFixed(domain.SettlementPrecision))
	if err != nil {
		return fmt.Errorf("failed to bind identifier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identifier %s %s is not reserved", order.Amount.StringFixed(2), order.Currency)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	order.Status = domain.OrderStatusPending
	order.UpdatedAt = order.CreatedAt
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM recharge_orders WHERE order_id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) FindPendingByAmount(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM recharge_orders
		WHERE currency = $1 AND amount = $2 AND status = 'pending'
	`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, string(currency), amount.StringFixed(domain.SettlementPrecision)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by amount: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) GetPendingByUser(ctx context.Context, userID int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM recharge_orders WHERE user_id = $1 AND status = 'pending'`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending order: %w", err)
	}
	return order, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

func (r *OrderRepository) Cancel(ctx context.Context, orderID string, now time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE recharge_orders SET status = 'cancelled', updated_at = $2
		WHERE order_id = $1 AND status = 'pending'
	`, orderID, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := releaseByOrder(ctx, tx, orderID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit cancel: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE recharge_orders SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING `+orderColumns, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire orders: %w", err)
	}
	expired, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(expired))
	for _, o := range expired {
		ids = append(ids, o.OrderID)
	}
	if err := releaseByOrder(ctx, tx, ids...); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return expired, nil
}

func (r *OrderRepository) Settle(ctx context.Context, s *domain.Settlement) (*domain.SettlementResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE recharge_orders
		SET status = 'completed', tx_hash = $2, received_amount = $3, credit_value = $4,
		    completed_at = $5, updated_at = $5
		WHERE order_id = $1 AND status = 'pending'
		RETURNING `+orderColumns,
		s.OrderID, s.TxHash, s.Amount.StringFixed(domain.SettlementPrecision), s.Credits.StringFixed(2), s.SettledAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.SettlementResult{Applied: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}

	result := &domain.SettlementResult{Applied: true, Order: order}

	switch order.Type {
	case domain.OrderTypeRecharge:
		log, err := applyBalanceChange(ctx, tx, &domain.BalanceChange{
			UserID:      order.UserID,
			Amount:      s.Credits,
			ChangeType:  domain.ChangeTypeRecharge,
			Description: fmt.Sprintf("recharge %s %s", s.Amount.StringFixed(2), order.Currency),
			Reference:   order.OrderID,
		}, s.SettledAt)
		if err != nil {
			return nil, err
		}
		result.BalanceAfter = log.BalanceAfter
	case domain.OrderTypeVIP:
		expiresAt, err := extendVIP(ctx, tx, order.UserID, order.VIPMonths, s.SettledAt)
		if err != nil {
			return nil, err
		}
		result.VIPExpiresAt = &expiresAt
	default:
		return nil, fmt.Errorf("unknown order type %q", order.Type)
	}

	if err := releaseByOrder(ctx, tx, order.OrderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return result, nil
}

// ============================================================================
// STATISTICS
// ============================================================================

func (r *OrderRepository) Stats(ctx context.Context, from, to time.Time) (*domain.RechargeStats, error) {
	stats := &domain.RechargeStats{
		From:             from,
		To:               to,
		AmountByCurrency: make(map[domain.Currency]decimal.Decimal),
	}

	var credits string
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE order_type = 'vip'),
			COALESCE(SUM(credit_value), 0)::text
		FROM recharge_orders
		WHERE status = 'completed' AND completed_at >= $1 AND completed_at < $2
	`, from, to).Scan(&stats.CompletedOrders, &stats.VIPOrders, &credits)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	stats.RechargeOrders = stats.CompletedOrders - stats.VIPOrders
	if stats.TotalCredits, err = parseDecimal(credits); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT currency, COALESCE(SUM(received_amount), 0)::text
		FROM recharge_orders
		WHERE status = 'completed' AND completed_at >= $1 AND completed_at < $2
		GROUP BY currency
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum amounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cur, sum string
		if err := rows.Scan(&cur, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := parseDecimal(sum)
		if err != nil {
			return nil, err
		}
		stats.AmountByCurrency[domain.Currency(cur)] = amount
	}
	return stats, rows.Err()
}

// ============================================================================
// HELPERS
// ============================================================================

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                           domain.Order
		orderType, currency, status string
		base, amount, credit        string
		received                    *string
	)
	err := row.Scan(
		&o.OrderID, &o.UserID, &orderType, &currency,
		&base, &amount, &received, &credit,
		&o.VIPMonths, &status, &o.WalletAddress, &o.TxHash,
		&o.CreatedAt, &o.ExpiresAt, &o.CompletedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var ok bool
	if o.Type, ok = domain.ParseOrderType(orderType); !ok {
		return nil, fmt.Errorf("order %s: unknown order type %q", o.OrderID, orderType)
	}
	if o.Status, ok = domain.ParseOrderStatus(status); !ok {
		return nil, fmt.Errorf("order %s: unknown order status %q", o.OrderID, status)
	}
	if o.Currency, err = domain.ParseCurrency(currency); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
	}
	if o.BaseAmount, err = parseDecimal(base); err != nil {
		return nil, err
	}
	if o.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if o.CreditValue, err = parseDecimal(credit); err != nil {
		return nil, err
	}
	if received != nil {
		v, err := parseDecimal(*received)
		if err != nil {
			return nil, err
		}
		o.ReceivedAmount = decimal.NewNullDecimal(v)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

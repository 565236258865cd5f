// internal/repository/sqlite/order_repo.go
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

const orderColumns = `
	order_id, user_id, order_type, currency,
	base_amount, amount, received_amount, credit_value,
	vip_months, status, wallet_address, tx_hash,
	created_at, expires_at, completed_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	amount := order.Amount.StringFixed(domain.SettlementPrecision)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO recharge_orders (
			order_id, user_id, order_type, currency,
			base_amount, amount, credit_value, vip_months,
			status, wallet_address, created_at, expires_at, updated_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?11)
	`,
		order.OrderID,
		order.UserID,
		string(order.Type),
		string(order.Currency),
		order.BaseAmount.StringFixed(domain.SettlementPrecision),
		amount,
		order.CreditValue.StringFixed(2),
		order.VIPMonths,
		string(domain.OrderStatusPending),
		order.WalletAddress,
		millis(order.CreatedAt),
		millis(order.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err, "recharge_orders.user_id") {
			return domain.ErrActiveOrderExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE amount_identifiers SET order_id = ?1
		WHERE currency = ?2 AND amount = ?3 AND is_used = 1 AND order_id IS NULL
	`, order.OrderID, string(order.Currency), amount)
	if err != nil {
		return fmt.Errorf("failed to bind identifier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identifier %s %s is not reserved", amount, order.Currency)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	order.Status = domain.OrderStatusPending
	order.UpdatedAt = order.CreatedAt
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM recharge_orders WHERE order_id = ?1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) FindPendingByAmount(ctx context.Context, currency domain.Currency, amount decimal.Decimal) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM recharge_orders
		WHERE currency = ?1 AND amount = ?2 AND status = 'pending'
	`, string(currency), amount.StringFixed(domain.SettlementPrecision)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by amount: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) GetPendingByUser(ctx context.Context, userID int64) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM recharge_orders WHERE user_id = ?1 AND status = 'pending'`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) Cancel(ctx context.Context, orderID string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE recharge_orders SET status = 'cancelled', updated_at = ?2
		WHERE order_id = ?1 AND status = 'pending'
	`, orderID, millis(now))
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := releaseByOrder(ctx, tx, now, orderID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cancel: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE recharge_orders SET status = 'expired', updated_at = ?1
		WHERE status = 'pending' AND expires_at <= ?1
		RETURNING `+orderColumns, millis(now))
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
	if err := releaseByOrder(ctx, tx, now, ids...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return expired, nil
}

func (r *OrderRepository) Settle(ctx context.Context, s *domain.Settlement) (*domain.SettlementResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE recharge_orders
		SET status = 'completed', tx_hash = ?2, received_amount = ?3, credit_value = ?4,
		    completed_at = ?5, updated_at = ?5
		WHERE order_id = ?1 AND status = 'pending'
		RETURNING `+orderColumns,
		s.OrderID, s.TxHash, s.Amount.StringFixed(domain.SettlementPrecision), s.Credits.StringFixed(2), millis(s.SettledAt)))
	if errors.Is(err, sql.ErrNoRows) {
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

	if err := releaseByOrder(ctx, tx, s.SettledAt, order.OrderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return result, nil
}

// Stats sums in Go: SQLite has no exact decimal type.
func (r *OrderRepository) Stats(ctx context.Context, from, to time.Time) (*domain.RechargeStats, error) {
	stats := &domain.RechargeStats{
		From:             from,
		To:               to,
		AmountByCurrency: make(map[domain.Currency]decimal.Decimal),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_type, currency, COALESCE(received_amount, amount), credit_value
		FROM recharge_orders
		WHERE status = 'completed' AND completed_at >= ?1 AND completed_at < ?2
	`, millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderType, cur, amountStr, creditStr string
		if err := rows.Scan(&orderType, &cur, &amountStr, &creditStr); err != nil {
			return nil, fmt.Errorf("failed to scan completed order: %w", err)
		}
		amount, err := parseDecimal(amountStr)
		if err != nil {
			return nil, err
		}
		credits, err := parseDecimal(creditStr)
		if err != nil {
			return nil, err
		}

		stats.CompletedOrders++
		if domain.OrderType(orderType) == domain.OrderTypeVIP {
			stats.VIPOrders++
		} else {
			stats.RechargeOrders++
		}
		c := domain.Currency(cur)
		stats.AmountByCurrency[c] = stats.AmountByCurrency[c].Add(amount)
		stats.TotalCredits = stats.TotalCredits.Add(credits)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completed orders: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                           domain.Order
		orderType, currency, status string
		base, amount, credit        string
		received, txHash            sql.NullString
		created, expires, updated   int64
		completed                   sql.NullInt64
	)
	err := row.Scan(
		&o.OrderID, &o.UserID, &orderType, &currency,
		&base, &amount, &received, &credit,
		&o.VIPMonths, &status, &o.WalletAddress, &txHash,
		&created, &expires, &completed, &updated,
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
	o.CreatedAt = fromMillis(created)
	o.ExpiresAt = fromMillis(expires)
	o.UpdatedAt = fromMillis(updated)
	o.CompletedAt = fromNullMillis(completed)
	if txHash.Valid {
		o.TxHash = &txHash.String
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
	if received.Valid {
		v, err := parseDecimal(received.String)
		if err != nil {
			return nil, err
		}
		o.ReceivedAmount = decimal.NewNullDecimal(v)
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
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

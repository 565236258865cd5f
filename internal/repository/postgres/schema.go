// internal/repository/postgres/schema.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS amount_identifiers (
		currency     TEXT NOT NULL,
		amount       NUMERIC(20,2) NOT NULL,
		is_used      BOOLEAN NOT NULL DEFAULT FALSE,
		order_id     TEXT,
		reserved_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		released_at  TIMESTAMPTZ,
		PRIMARY KEY (currency, amount)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_amount_identifiers_order ON amount_identifiers (order_id)`,
	`CREATE TABLE IF NOT EXISTS recharge_orders (
		order_id         TEXT PRIMARY KEY,
		user_id          BIGINT NOT NULL,
		order_type       TEXT NOT NULL,
		currency         TEXT NOT NULL,
		base_amount      NUMERIC(20,2) NOT NULL,
		amount           NUMERIC(20,2) NOT NULL,
		received_amount  NUMERIC(20,2),
		credit_value     NUMERIC(24,2) NOT NULL,
		vip_months       INT NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		wallet_address   TEXT NOT NULL,
		tx_hash          TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		completed_at     TIMESTAMPTZ,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recharge_orders_pending_user
		ON recharge_orders (user_id) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recharge_orders_pending_amount
		ON recharge_orders (currency, amount) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS ix_recharge_orders_expiry ON recharge_orders (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS ix_recharge_orders_completed ON recharge_orders (completed_at) WHERE status = 'completed'`,
	`CREATE TABLE IF NOT EXISTS block_scan_cursors (
		currency      TEXT PRIMARY KEY,
		block_number  BIGINT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id       BIGINT PRIMARY KEY,
		balance       NUMERIC(24,2) NOT NULL DEFAULT 0,
		total_earned  NUMERIC(24,2) NOT NULL DEFAULT 0,
		total_spent   NUMERIC(24,2) NOT NULL DEFAULT 0,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS balance_logs (
		id              BIGSERIAL PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		amount          NUMERIC(24,2) NOT NULL,
		balance_before  NUMERIC(24,2) NOT NULL,
		balance_after   NUMERIC(24,2) NOT NULL,
		change_type     TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		operator_id     BIGINT,
		reference       TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_balance_logs_user ON balance_logs (user_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS vip_memberships (
		user_id     BIGINT PRIMARY KEY,
		expires_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_overrides (
		currency    TEXT PRIMARY KEY,
		rate        NUMERIC(24,8) NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS system_config (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

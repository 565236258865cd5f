// internal/repository/sqlite/store.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recharge-service/internal/repository"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS amount_identifiers (
		currency     TEXT NOT NULL,
		amount       TEXT NOT NULL,
		is_used      INTEGER NOT NULL DEFAULT 0,
		order_id     TEXT,
		reserved_at  INTEGER NOT NULL,
		released_at  INTEGER,
		PRIMARY KEY (currency, amount)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_amount_identifiers_order ON amount_identifiers (order_id)`,
	`CREATE TABLE IF NOT EXISTS recharge_orders (
		order_id         TEXT PRIMARY KEY,
		user_id          INTEGER NOT NULL,
		order_type       TEXT NOT NULL,
		currency         TEXT NOT NULL,
		base_amount      TEXT NOT NULL,
		amount           TEXT NOT NULL,
		received_amount  TEXT,
		credit_value     TEXT NOT NULL,
		vip_months       INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		wallet_address   TEXT NOT NULL,
		tx_hash          TEXT,
		created_at       INTEGER NOT NULL,
		expires_at       INTEGER NOT NULL,
		completed_at     INTEGER,
		updated_at       INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recharge_orders_pending_user
		ON recharge_orders (user_id) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recharge_orders_pending_amount
		ON recharge_orders (currency, amount) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS ix_recharge_orders_expiry ON recharge_orders (status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS block_scan_cursors (
		currency      TEXT PRIMARY KEY,
		block_number  INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id       INTEGER PRIMARY KEY,
		balance       TEXT NOT NULL DEFAULT '0.00',
		total_earned  TEXT NOT NULL DEFAULT '0.00',
		total_spent   TEXT NOT NULL DEFAULT '0.00',
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS balance_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id         INTEGER NOT NULL,
		amount          TEXT NOT NULL,
		balance_before  TEXT NOT NULL,
		balance_after   TEXT NOT NULL,
		change_type     TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		operator_id     INTEGER,
		reference       TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_balance_logs_user ON balance_logs (user_id, id)`,
	`CREATE TABLE IF NOT EXISTS vip_memberships (
		user_id     INTEGER PRIMARY KEY,
		expires_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_overrides (
		currency    TEXT PRIMARY KEY,
		rate        TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS system_config (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
}

// Open opens (or creates) the database at path and applies the schema.
// SQLite allows one writer, so the pool is pinned to a single connection and
// every transaction is serialized in process.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
	}
	for _, stmt := range append(pragmas, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init sqlite: %w", err)
		}
	}
	return db, nil
}

// NewStore wires every repository on db. Closing the store closes db.
func NewStore(db *sql.DB) *repository.Store {
	return repository.NewStore(
		NewIdentifierRepository(db),
		NewOrderRepository(db),
		NewCursorRepository(db),
		NewBalanceRepository(db),
		NewVIPRepository(db),
		NewRateRepository(db),
		NewSettingsRepository(db),
		db.Close,
	)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}

func isUniqueViolation(err error, column string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return column == "" || strings.Contains(se.Error(), column)
}

// internal/repository/postgres/store.go
package postgres

import (
	"errors"
	"fmt"

	"recharge-service/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// NewStore wires every repository on one pool. Closing the store closes the pool.
func NewStore(pool *pgxpool.Pool) *repository.Store {
	return repository.NewStore(
		NewIdentifierRepository(pool),
		NewOrderRepository(pool),
		NewCursorRepository(pool),
		NewBalanceRepository(pool),
		NewVIPRepository(pool),
		NewRateRepository(pool),
		NewSettingsRepository(pool),
		func() error {
			pool.Close()
			return nil
		},
	)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

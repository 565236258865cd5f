// internal/config/db.config.go
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"recharge-service/internal/repository"
	"recharge-service/internal/repository/postgres"
	"recharge-service/internal/repository/sqlite"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ConnectDB opens a pgx pool built from DB_* variables, retrying with
// exponential backoff while the database comes up.
func ConnectDB(ctx context.Context, logger *zap.Logger) (*pgxpool.Pool, error) {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		os.Getenv("DB_NAME"),
		getEnv("DB_SSLMODE", "disable"),
	)

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolConfig.MaxConns = int32(getEnvAsInt("DB_MAX_CONNS", 20))
	poolConfig.MinConns = int32(getEnvAsInt("DB_MIN_CONNS", 2))
	poolConfig.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	poolConfig.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	maxRetries := 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		logger.Info("connecting to database",
			zap.Int("attempt", i),
			zap.Int("max_attempts", maxRetries),
			zap.String("host", poolConfig.ConnConfig.Host),
			zap.String("db", poolConfig.ConnConfig.Database),
		)

		var pool *pgxpool.Pool
		pool, err = connectOnce(ctx, poolConfig)
		if err == nil {
			logger.Info("database connected",
				zap.Int32("max_conns", poolConfig.MaxConns),
				zap.Int32("min_conns", poolConfig.MinConns),
			)
			return pool, nil
		}

		logger.Warn("database connection failed", zap.Error(err))
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", maxRetries, err)
}

func connectOnce(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return pool, nil
}

// OpenStore connects the configured backend and applies its schema.
func OpenStore(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (*repository.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return sqlite.NewStore(db), nil
	case "postgres":
		pool, err := ConnectDB(ctx, logger)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

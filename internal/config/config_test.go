// internal/config/config_test.go
package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"recharge-service/internal/chains/tron"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWallet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRON_WALLET_ADDRESS", testWallet)

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "shasta", cfg.Tron.Network)
	assert.Equal(t, "https://api.shasta.trongrid.io", cfg.Tron.HTTPUrl)
	assert.Equal(t, "grpc.shasta.trongrid.io:50051", cfg.Tron.GRPCUrl)
	assert.Equal(t, tron.USDTContractShasta, cfg.Tron.USDTContract)
	assert.Equal(t, "http", cfg.Tron.Transport)
	assert.Equal(t, 3*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, int64(100), cfg.Scanner.MaxBlocksCycle)
	assert.Equal(t, 30*time.Minute, cfg.Recharge.OrderTTL)
	assert.True(t, cfg.Recharge.MinAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Exchange.USDTRate.Equal(decimal.RequireFromString("7.2")))
	assert.True(t, cfg.Exchange.TRXRate.Equal(decimal.RequireFromString("0.75")))
	assert.Equal(t, []string{"log"}, cfg.Notifications.Sinks)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRON_WALLET_ADDRESS", testWallet)
	t.Setenv("TRON_NETWORK", "mainnet")
	t.Setenv("TRON_TRANSPORT", "GRPC")
	t.Setenv("TRON_CONFIRMATIONS", "19")
	t.Setenv("SCANNER_INTERVAL", "500ms")
	t.Setenv("RECHARGE_MIN_AMOUNT", "2.5")
	t.Setenv("NOTIFY_SINKS", "log, kafka,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, tron.USDTContractMainnet, cfg.Tron.USDTContract)
	assert.Equal(t, "grpc.trongrid.io:50051", cfg.Tron.GRPCUrl)
	assert.Equal(t, "grpc", cfg.Tron.Transport)
	assert.Equal(t, int64(19), cfg.Tron.Confirmations)
	assert.Equal(t, 500*time.Millisecond, cfg.Scanner.Interval)
	assert.True(t, cfg.Recharge.MinAmount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"log", "kafka"}, cfg.Notifications.Sinks)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing wallet", map[string]string{}},
		{"malformed wallet", map[string]string{"TRON_WALLET_ADDRESS": "TNotAnAddress"}},
		{"unknown network", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "TRON_NETWORK": "moon"}},
		{"unknown transport", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "TRON_TRANSPORT": "ws"}},
		{"unknown driver", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "DB_DRIVER": "mysql"}},
		{"unknown sink", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "NOTIFY_SINKS": "email"}},
		{"non-positive minimum", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "RECHARGE_MIN_AMOUNT": "0"}},
		{"max below min", map[string]string{"TRON_WALLET_ADDRESS": testWallet, "RECHARGE_MAX_AMOUNT": "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TRON_WALLET_ADDRESS", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_DEC", "1.2.3")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.Equal(t, time.Second, getEnvAsDuration("X_DUR", time.Second))
	assert.True(t, getEnvAsDecimal("X_DEC", decimal.NewFromInt(3)).Equal(decimal.NewFromInt(3)))
	assert.True(t, getEnvAsBool("X_BOOL", true))
}

func TestOpenStoreSQLite(t *testing.T) {
	store, err := OpenStore(context.Background(), DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "cfg.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Cursors.Get(context.Background(), "TRX")
	require.NoError(t, err)
	assert.False(t, found)
}

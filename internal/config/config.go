// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"recharge-service/internal/chains/tron"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	App           AppConfig
	Tron          TronConfig
	Scanner       ScannerConfig
	Recharge      RechargeConfig
	Exchange      ExchangeConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Notifications NotificationConfig
}

type AppConfig struct {
	Env        string // "production", "development"
	HTTPAddr   string
	GRPCAddr   string
	AdminToken string
}

type TronConfig struct {
	Network        string // mainnet, shasta, nile
	Transport      string // "http", "grpc"
	APIKey         string
	HTTPUrl        string
	GRPCUrl        string
	WalletAddress  string
	USDTContract   string
	RequestTimeout time.Duration
	RequestsPerSec float64
	Confirmations  int64
}

type ScannerConfig struct {
	Interval       time.Duration
	BlockDelay     time.Duration
	MaxBlocksCycle int64
}

type RechargeConfig struct {
	MinAmount          decimal.Decimal
	MaxAmount          decimal.Decimal
	OrderTTL           time.Duration
	VIPMonthlyPrice    decimal.Decimal
	AllocationAttempts int
}

type ExchangeConfig struct {
	USDTRate    decimal.Decimal
	TRXRate     decimal.Decimal
	CacheTTL    time.Duration
	FeedEnabled bool
	BinanceURL  string
	FeedTimeout time.Duration
	FeedRPS     float64
}

type DatabaseConfig struct {
	Driver     string // "postgres", "sqlite"
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type NotificationConfig struct {
	Sinks   []string // "log", "redis", "kafka"
	Channel string
}

func Load(logger *zap.Logger) (*Config, error) {
	// ============================================================================
	// TRON Configuration
	// ============================================================================
	tronNetwork := getEnv("TRON_NETWORK", "shasta")
	network, err := tron.LookupNetwork(tronNetwork)
	if err != nil {
		return nil, err
	}

	tronHTTPUrl := getEnv("TRON_HTTP_URL", network.HTTPURL)
	tronGRPCUrl := getEnv("TRON_GRPC_URL", network.GRPCURL)
	usdtContract := getEnv("TRON_USDT_CONTRACT", network.USDTContract)

	// ============================================================================
	// Recharge Configuration
	// ============================================================================
	minAmount := getEnvAsDecimal("RECHARGE_MIN_AMOUNT", decimal.NewFromInt(10))
	maxAmount := getEnvAsDecimal("RECHARGE_MAX_AMOUNT", decimal.NewFromInt(1_000_000))

	// ============================================================================
	// Exchange Configuration
	// ============================================================================
	feedEnabled := getEnvAsBool("EXCHANGE_FEED_ENABLED", true)
	if !feedEnabled {
		logger.Info("exchange rate feed disabled, using fixed rates")
	}

	cfg := &Config{
		App: AppConfig{
			Env:        getEnv("APP_ENV", "production"),
			HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:   getEnv("GRPC_ADDR", ":9090"),
			AdminToken: os.Getenv("ADMIN_TOKEN"),
		},
		Tron: TronConfig{
			Network:        tronNetwork,
			Transport:      strings.ToLower(getEnv("TRON_TRANSPORT", "http")),
			APIKey:         getEnv("TRON_API_KEY", ""),
			HTTPUrl:        tronHTTPUrl,
			GRPCUrl:        tronGRPCUrl,
			WalletAddress:  getEnv("TRON_WALLET_ADDRESS", ""),
			USDTContract:   usdtContract,
			RequestTimeout: getEnvAsDuration("TRON_REQUEST_TIMEOUT", 10*time.Second),
			RequestsPerSec: getEnvAsFloat("TRON_REQUESTS_PER_SEC", 10),
			Confirmations:  getEnvAsInt64("TRON_CONFIRMATIONS", 0),
		},
		Scanner: ScannerConfig{
			Interval:       getEnvAsDuration("SCANNER_INTERVAL", 3*time.Second),
			BlockDelay:     getEnvAsDuration("SCANNER_BLOCK_DELAY", 200*time.Millisecond),
			MaxBlocksCycle: getEnvAsInt64("SCANNER_MAX_BLOCKS", 100),
		},
		Recharge: RechargeConfig{
			MinAmount:          minAmount,
			MaxAmount:          maxAmount,
			OrderTTL:           time.Duration(getEnvAsInt64("RECHARGE_TIMEOUT_SECONDS", 1800)) * time.Second,
			VIPMonthlyPrice:    getEnvAsDecimal("VIP_MONTHLY_PRICE", decimal.NewFromInt(200)),
			AllocationAttempts: getEnvAsInt("RECHARGE_ALLOCATION_ATTEMPTS", 100),
		},
		Exchange: ExchangeConfig{
			USDTRate:    getEnvAsDecimal("EXCHANGE_USDT_RATE", decimal.RequireFromString("7.2")),
			TRXRate:     getEnvAsDecimal("EXCHANGE_TRX_RATE", decimal.RequireFromString("0.75")),
			CacheTTL:    time.Duration(getEnvAsInt64("EXCHANGE_CACHE_TTL_SECONDS", 300)) * time.Second,
			FeedEnabled: feedEnabled,
			BinanceURL:  getEnv("EXCHANGE_BINANCE_URL", "https://api.binance.com"),
			FeedTimeout: getEnvAsDuration("EXCHANGE_FEED_TIMEOUT", 10*time.Second),
			FeedRPS:     getEnvAsFloat("EXCHANGE_FEED_RPS", 2),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			SQLitePath: getEnv("SQLITE_PATH", "recharge.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "redis:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: parseCSVEnv("KAFKA_BROKERS", "kafka:9092"),
			Topic:   getEnv("KAFKA_TOPIC", "recharge.events"),
		},
		Notifications: NotificationConfig{
			Sinks:   parseCSVEnv("NOTIFY_SINKS", "log"),
			Channel: getEnv("NOTIFY_REDIS_CHANNEL", "recharge:events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("network", cfg.Tron.Network),
		zap.String("transport", cfg.Tron.Transport),
		zap.String("wallet", cfg.Tron.WalletAddress),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("notify_sinks", cfg.Notifications.Sinks),
	)
	return cfg, nil
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.Tron.WalletAddress == "" {
		errs = append(errs, errors.New("TRON_WALLET_ADDRESS is required"))
	} else if err := tron.ValidateAddress(c.Tron.WalletAddress); err != nil {
		errs = append(errs, fmt.Errorf("TRON_WALLET_ADDRESS: %w", err))
	}
	if err := tron.ValidateAddress(c.Tron.USDTContract); err != nil {
		errs = append(errs, fmt.Errorf("TRON_USDT_CONTRACT: %w", err))
	}

	switch c.Tron.Transport {
	case "http", "grpc":
	default:
		errs = append(errs, fmt.Errorf("unsupported TRON_TRANSPORT %q", c.Tron.Transport))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	for _, sink := range c.Notifications.Sinks {
		switch sink {
		case "log", "redis", "kafka":
		default:
			errs = append(errs, fmt.Errorf("unsupported notification sink %q", sink))
		}
	}

	if !c.Recharge.MinAmount.IsPositive() {
		errs = append(errs, errors.New("RECHARGE_MIN_AMOUNT must be positive"))
	}
	if c.Recharge.MaxAmount.LessThan(c.Recharge.MinAmount) {
		errs = append(errs, errors.New("RECHARGE_MAX_AMOUNT must not be below RECHARGE_MIN_AMOUNT"))
	}
	if c.Recharge.OrderTTL <= 0 {
		errs = append(errs, errors.New("RECHARGE_TIMEOUT_SECONDS must be positive"))
	}
	if c.Recharge.AllocationAttempts <= 0 {
		errs = append(errs, errors.New("RECHARGE_ALLOCATION_ATTEMPTS must be positive"))
	}
	if c.Scanner.Interval <= 0 || c.Scanner.MaxBlocksCycle <= 0 {
		errs = append(errs, errors.New("scanner interval and max blocks must be positive"))
	}
	if c.Tron.Confirmations < 0 {
		errs = append(errs, errors.New("TRON_CONFIRMATIONS must not be negative"))
	}
	if !c.Exchange.USDTRate.IsPositive() || !c.Exchange.TRXRate.IsPositive() {
		errs = append(errs, errors.New("exchange rates must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// ============================================================================
// Helper Functions
// ============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseCSVEnv(key, fallback string) []string {
	val := getEnv(key, fallback)
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

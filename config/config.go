package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	AES        AESConfig        `mapstructure:"aes"`
	Log        LogConfig        `mapstructure:"log"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Market     MarketConfig     `mapstructure:"market"`
	Rate       RateConfig       `mapstructure:"rate"`
	Deposit    DepositConfig    `mapstructure:"deposit"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig validates bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ProviderConfig configures the PIX payment provider. Cert, key and CA files
// enable mutual TLS; an empty CertFile means plain TLS.
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	CertFile      string        `mapstructure:"cert_file"`
	KeyFile       string        `mapstructure:"key_file"`
	CAFile        string        `mapstructure:"ca_file"`
	PayeeKey      string        `mapstructure:"payee_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Symbol  string        `mapstructure:"symbol"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateConfig struct {
	TTL             time.Duration   `mapstructure:"ttl"`
	RetryBackoff    time.Duration   `mapstructure:"retry_backoff"` // no upstream retry this long after a failure
	FeePercentRaw   string          `mapstructure:"fee_percent"`
	MinNotionalRaw  string          `mapstructure:"min_notional"`
	FeePercent      decimal.Decimal `mapstructure:"-"` // fraction, 0.01 = 1%
	MinimumNotional decimal.Decimal `mapstructure:"-"` // in USDT
}

type DepositConfig struct {
	MinAmountRaw  string          `mapstructure:"min_amount"`
	MinAmount     decimal.Decimal `mapstructure:"-"`
	Expiry        time.Duration   `mapstructure:"expiry"`
	Lookback      time.Duration   `mapstructure:"lookback"`
	SweepInterval time.Duration   `mapstructure:"sweep_interval"`
	MerchantName  string          `mapstructure:"merchant_name"`
	MerchantCity  string          `mapstructure:"merchant_city"`
}

type WithdrawalConfig struct {
	MinAmountRaw string          `mapstructure:"min_amount"`
	MinAmount    decimal.Decimal `mapstructure:"-"`
}

// NotifyConfig configures the notification channel. Empty AllowedOrigins
// accepts same-origin browsers only.
type NotifyConfig struct {
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// KafkaConfig enables event fan-out when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PXW_.
// Nested keys use underscore: PXW_DATABASE_HOST, PXW_PROVIDER_CLIENT_ID, etc.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PXW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.parseAmounts(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "pixwallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "pixwallet-identity")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("provider.base_url", "https://pix.api.efipay.com.br")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("market.base_url", "https://api.binance.com")
	v.SetDefault("market.symbol", "USDTBRL")
	v.SetDefault("market.timeout", "5s")

	v.SetDefault("rate.ttl", "60s")
	v.SetDefault("rate.retry_backoff", "5s")
	v.SetDefault("rate.fee_percent", "0.01")
	v.SetDefault("rate.min_notional", "1")

	v.SetDefault("deposit.min_amount", "1.00")
	v.SetDefault("deposit.expiry", "1h")
	v.SetDefault("deposit.lookback", "24h")
	v.SetDefault("deposit.sweep_interval", "5m")
	v.SetDefault("deposit.merchant_name", "PIXWALLET")
	v.SetDefault("deposit.merchant_city", "SAO PAULO")
	v.SetDefault("withdrawal.min_amount", "1.00")

	v.SetDefault("notify.token_ttl", "30s")
	v.SetDefault("notify.send_buffer", 16)
	v.SetDefault("notify.allowed_origins", []string{})
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "wallet.events")
}

// parseAmounts converts decimal settings, kept as strings so that YAML
// floats never round-trip through float64.
func (c *Config) parseAmounts() error {
	fields := []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"rate.fee_percent", c.Rate.FeePercentRaw, &c.Rate.FeePercent},
		{"rate.min_notional", c.Rate.MinNotionalRaw, &c.Rate.MinimumNotional},
		{"deposit.min_amount", c.Deposit.MinAmountRaw, &c.Deposit.MinAmount},
		{"withdrawal.min_amount", c.Withdrawal.MinAmountRaw, &c.Withdrawal.MinAmount},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.key, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("parsing %s: must not be negative", f.key)
		}
		*f.dst = d
	}
	if c.Rate.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("parsing rate.fee_percent: must be below 1")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PayPal     PayPalConfig     `mapstructure:"paypal"`
	Checkout   CheckoutConfig   `mapstructure:"checkout"`
	Rates      RatesConfig      `mapstructure:"rates"`
	Admin      AdminConfig      `mapstructure:"admin"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PayPalEnvironment selects the provider endpoint set.
type PayPalEnvironment string

const (
	PayPalSandbox PayPalEnvironment = "sandbox"
	PayPalLive    PayPalEnvironment = "live"
)

// PayPalCredentials holds one environment's credential set.
type PayPalCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	WebhookID    string `mapstructure:"webhook_id"`
}

// PayPalConfig holds PayPal configuration with sandbox and live variants.
type PayPalConfig struct {
	Environment PayPalEnvironment `mapstructure:"environment"`
	Sandbox     PayPalCredentials `mapstructure:"sandbox"`
	Live        PayPalCredentials `mapstructure:"live"`
	ReturnURL   string            `mapstructure:"return_url"`
	CancelURL   string            `mapstructure:"cancel_url"`
}

// Active returns the credential set for the configured environment.
func (c *PayPalConfig) Active() PayPalCredentials {
	if c.Environment == PayPalLive {
		return c.Live
	}
	return c.Sandbox
}

// CheckoutConfig holds checkout session configuration.
type CheckoutConfig struct {
	FundingSources []string      `mapstructure:"funding_sources"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// RatesConfig holds currency rate provider configuration.
type RatesConfig struct {
	SourceURL    string        `mapstructure:"source_url"`
	BaseCurrency string        `mapstructure:"base_currency"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// AdminConfig holds the admin dashboard auth configuration.
type AdminConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenExpiry  time.Duration `mapstructure:"token_expiry"`
}

// HTTPClientConfig holds outbound HTTP client configuration.
type HTTPClientConfig struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/clickcart")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("CLICKCART")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("CLICKCART_PAYPAL_SANDBOX_CLIENT_SECRET"); secret != "" {
		cfg.PayPal.Sandbox.ClientSecret = secret
	}
	if secret := os.Getenv("CLICKCART_PAYPAL_LIVE_CLIENT_SECRET"); secret != "" {
		cfg.PayPal.Live.ClientSecret = secret
	}
	if secret := os.Getenv("CLICKCART_ADMIN_JWT_SECRET"); secret != "" {
		cfg.Admin.JWTSecret = secret
	}
	if password := os.Getenv("CLICKCART_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("CLICKCART_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "clickcart")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// PayPal defaults
	v.SetDefault("paypal.environment", "sandbox")
	v.SetDefault("paypal.sandbox.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.live.base_url", "https://api-m.paypal.com")
	v.SetDefault("paypal.return_url", "http://localhost:8080/checkout/return")
	v.SetDefault("paypal.cancel_url", "http://localhost:8080/checkout/cancel")

	// Checkout defaults
	v.SetDefault("checkout.funding_sources", []string{"paypal", "card", "googlepay"})
	v.SetDefault("checkout.session_ttl", 2*time.Hour)

	// Currency rate defaults
	v.SetDefault("rates.source_url", "https://api.frankfurter.dev/v1/latest")
	v.SetDefault("rates.base_currency", "EUR")
	v.SetDefault("rates.cache_ttl", time.Hour)

	// Admin defaults
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.token_expiry", 12*time.Hour)

	// Outbound HTTP client defaults. Provider calls must never hang;
	// the response timeout bounds the whole request.
	v.SetDefault("http_client.dial_timeout", 5*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 15*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

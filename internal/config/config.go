package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/scheduler"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Account   AccountConfig             `mapstructure:"account"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Refresh   RefreshConfig             `mapstructure:"refresh"`
	Source    SourceConfig              `mapstructure:"source"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Watchlist []string                  `mapstructure:"watchlist"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Mode   string `mapstructure:"mode"`
	APIKey string `mapstructure:"api_key"`
}

// AccountConfig holds the paper account settings.
type AccountConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	Currency       string  `mapstructure:"currency"`
}

// Balance returns InitialBalance as a decimal rounded to cents.
func (a AccountConfig) Balance() decimal.Decimal {
	return decimal.NewFromFloat(a.InitialBalance).Round(2)
}

// CacheConfig holds price cache settings.
type CacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// RefreshConfig holds the periodic refresh settings.
type RefreshConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SourceConfig selects and configures the price source.
type SourceConfig struct {
	Provider string             `mapstructure:"provider"` // "yahoo", "alpaca", "binance" or "static"
	Yahoo    YahooConfig        `mapstructure:"yahoo"`
	Alpaca   AlpacaConfig       `mapstructure:"alpaca"`
	Binance  BinanceConfig      `mapstructure:"binance"`
	Static   map[string]float64 `mapstructure:"static"`
}

type YahooConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type BinanceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Quote   string `mapstructure:"quote"` // appended to bare tickers, default USDT
}

type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	Feed      string `mapstructure:"feed"`
}

type StorageConfig struct {
	Type  string   `mapstructure:"type"`  // "memory", "localfs", "sqlite" or "s3"
	Path  string   `mapstructure:"path"`  // For localfs and sqlite
	Codec string   `mapstructure:"codec"` // "json" or "msgpack"
	S3    S3Config `mapstructure:"s3"`    // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	URL      string `mapstructure:"url"`
	// Email notifier fields
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	// Webhook notifier fields
	Headers map[string]string `mapstructure:"headers"`
}

// Params flattens the typed fields into the map notifiers are initialised with.
func (n NotifierConfig) Params() map[string]any {
	params := map[string]any{}
	set := func(key, val string) {
		if val != "" {
			params[key] = val
		}
	}
	set("bot_token", n.BotToken)
	set("chat_id", n.ChatID)
	set("api_base", n.APIBase)
	set("url", n.URL)
	set("host", n.Host)
	set("username", n.Username)
	set("password", n.Password)
	set("from", n.From)
	if n.Port != 0 {
		params["port"] = n.Port
	}
	if len(n.To) > 0 {
		params["to"] = n.To
	}
	if len(n.Headers) > 0 {
		params["headers"] = n.Headers
	}
	return params
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults. A .env file in the
// working directory, when present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("PAPERDESK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("account.initial_balance", d.Account.InitialBalance)
	v.SetDefault("account.currency", d.Account.Currency)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.fetch_timeout", d.Cache.FetchTimeout)
	v.SetDefault("refresh.enabled", d.Refresh.Enabled)
	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("source.provider", d.Source.Provider)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.codec", d.Storage.Codec)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Account: AccountConfig{
			InitialBalance: 100000,
			Currency:       "USD",
		},
		Cache: CacheConfig{
			TTL:          5 * time.Second,
			FetchTimeout: 10 * time.Second,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 10 * time.Second,
		},
		Source: SourceConfig{
			Provider: "yahoo",
		},
		Storage: StorageConfig{
			Type:  "localfs",
			Path:  "data",
			Codec: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if !c.Account.Balance().IsPositive() {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_balance must be positive, got %v", c.Account.InitialBalance))
	}

	if c.Cache.TTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Cache.FetchTimeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache fetch_timeout must be positive, got %s", c.Cache.FetchTimeout))
	}

	if !scheduler.ValidInterval(c.Refresh.Interval) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh interval must be one of %v, got %s", scheduler.Intervals, c.Refresh.Interval))
	}

	// Source validation - if provider set, check config exists
	switch c.Source.Provider {
	case "yahoo", "binance", "static":
	case "alpaca":
		if c.Source.Alpaca.APIKey == "" || c.Source.Alpaca.APISecret == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("alpaca api_key and api_secret required when provider is alpaca"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown source provider %q", c.Source.Provider))
	}

	switch c.Storage.Type {
	case "", "memory":
	case "localfs", "sqlite":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required for %s", c.Storage.Type))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when storage type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	switch c.Storage.Codec {
	case "", "json", "msgpack":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage codec %q", c.Storage.Codec))
	}

	return nil
}

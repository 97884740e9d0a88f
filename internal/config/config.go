// Package config defines all configuration for the gateway. Config is
// loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via GATEWAY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Auth      AuthConfig      `mapstructure:"auth"`
	TWAP      TWAPConfig      `mapstructure:"twap"`
	Freshness FreshnessConfig `mapstructure:"freshness"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the REST+WS listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	TickPeriod      time.Duration `mapstructure:"tick_period"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BinanceConfig holds Binance-specific REST/WS endpoints.
type BinanceConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RestBaseURL string        `mapstructure:"rest_base_url"`
	MaxWeight   int           `mapstructure:"max_weight"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// KrakenConfig holds Kraken-specific REST/WS endpoints.
type KrakenConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RestBaseURL string        `mapstructure:"rest_base_url"`
	MaxWeight   int           `mapstructure:"max_weight"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExchangesConfig groups every configured venue.
type ExchangesConfig struct {
	Binance BinanceConfig `mapstructure:"binance"`
	Kraken  KrakenConfig  `mapstructure:"kraken"`
}

// AuthConfig configures the Auth Facade's backing credential store. Users
// is a map of username to bcrypt password hash, overridable wholesale via
// GATEWAY_AUTH_SEED_USERS (a "user:hash,user:hash" list) for operators who
// do not want credentials committed to the YAML file.
type AuthConfig struct {
	Users        map[string]string `mapstructure:"users"`
	TokenByteLen int               `mapstructure:"token_byte_len"`
}

// TWAPConfig bounds what a submitted TWAP order may request.
type TWAPConfig struct {
	MaxSlices       int `mapstructure:"max_slices"`
	MaxDurationSecs int `mapstructure:"max_duration_secs"`
}

// FreshnessConfig tunes the book staleness monitor.
type FreshnessConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// LoggingConfig controls the process-wide zerolog setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config populated with the reference deployment's
// defaults, suitable as a base before a YAML file or env vars are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			TickPeriod:      1 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Exchanges: ExchangesConfig{
			Binance: BinanceConfig{
				Enabled:     true,
				RestBaseURL: "https://api.binance.com",
				MaxWeight:   1200,
				Timeout:     10 * time.Second,
			},
			Kraken: KrakenConfig{
				Enabled:     true,
				RestBaseURL: "https://api.kraken.com",
				MaxWeight:   1200,
				Timeout:     10 * time.Second,
			},
		},
		Auth: AuthConfig{
			TokenByteLen: 32,
		},
		TWAP: TWAPConfig{
			MaxSlices:       500,
			MaxDurationSecs: 86400,
		},
		Freshness: FreshnessConfig{
			MaxAge:        10 * time.Second,
			CheckInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads config from a YAML file layered over Default, with
// GATEWAY_* environment variables overriding individual fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if seed := os.Getenv("GATEWAY_AUTH_SEED_USERS"); seed != "" {
		cfg.Auth.Users = parseSeedUsers(seed)
	}
	if addr := os.Getenv("GATEWAY_SERVER_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	return cfg, nil
}

// parseSeedUsers parses a "user:hash,user:hash" list into a map, skipping
// malformed entries rather than failing the whole load.
func parseSeedUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		users[parts[0]] = parts[1]
	}
	return users
}

// Validate checks required fields and value ranges before any component
// starts, per the ambient stack's "reject a bad config before startup"
// requirement.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.TickPeriod <= 0 {
		return fmt.Errorf("server.tick_period must be > 0")
	}
	if !c.Exchanges.Binance.Enabled && !c.Exchanges.Kraken.Enabled {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	if c.Exchanges.Binance.Enabled && c.Exchanges.Binance.RestBaseURL == "" {
		return fmt.Errorf("exchanges.binance.rest_base_url is required when enabled")
	}
	if c.Exchanges.Kraken.Enabled && c.Exchanges.Kraken.RestBaseURL == "" {
		return fmt.Errorf("exchanges.kraken.rest_base_url is required when enabled")
	}
	if len(c.Auth.Users) == 0 {
		return fmt.Errorf("auth.users must have at least one credential (or set GATEWAY_AUTH_SEED_USERS)")
	}
	if c.Auth.TokenByteLen <= 0 {
		return fmt.Errorf("auth.token_byte_len must be > 0")
	}
	if c.TWAP.MaxSlices <= 0 {
		return fmt.Errorf("twap.max_slices must be > 0")
	}
	if c.TWAP.MaxDurationSecs <= 0 {
		return fmt.Errorf("twap.max_duration_secs must be > 0")
	}
	if c.Freshness.MaxAge <= 0 {
		return fmt.Errorf("freshness.max_age must be > 0")
	}
	return nil
}

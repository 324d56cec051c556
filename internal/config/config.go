package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port            string        `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Logging struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"logging"`

	Database struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"database"`

	JWT struct {
		SecretKey   string `mapstructure:"secret_key"`
		ExpiryHours int    `mapstructure:"expiry_hours"`
	} `mapstructure:"jwt"`

	Argon2 struct {
		Time       uint32 `mapstructure:"time"`
		Memory     uint32 `mapstructure:"memory"`
		Threads    uint8  `mapstructure:"threads"`
		KeyLength  uint32 `mapstructure:"key_length"`
		SaltLength int    `mapstructure:"salt_length"`
	} `mapstructure:"argon2"`

	Ledger struct {
		Admin           string `mapstructure:"admin"`
		TradingIdentity string `mapstructure:"trading_identity"`
	} `mapstructure:"ledger"`

	Energy struct {
		CreditsPerKWh int64 `mapstructure:"credits_per_kwh"`
		InitialSupply int64 `mapstructure:"initial_supply"`
	} `mapstructure:"energy"`

	Carbon struct {
		// CC per kWh as decimal strings, keyed by energy type.
		Rates map[string]string `mapstructure:"rates"`
	} `mapstructure:"carbon"`

	Market struct {
		DefaultPrices  map[string]string `mapstructure:"default_prices"`
		MaxExpiryHours int               `mapstructure:"max_expiry_hours"`
	} `mapstructure:"market"`

	Governance struct {
		InitialSupply int64         `mapstructure:"initial_supply"`
		VotingPeriod  time.Duration `mapstructure:"voting_period"`
	} `mapstructure:"governance"`

	Events struct {
		Channel string `mapstructure:"channel"`
	} `mapstructure:"events"`

	Settlement struct {
		Currency string `mapstructure:"currency"`
		AgentBIC string `mapstructure:"agent_bic"`
	} `mapstructure:"settlement"`
}

// SetDefaults registers every default on v. The database and redis
// connection defaults live next to their clients.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"https://*", "http://*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("database.enabled", true)

	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 4)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("ledger.admin", "0x0000000000000000000000000000000000000001")
	v.SetDefault("ledger.trading_identity", "0x0000000000000000000000000000000000000002")

	v.SetDefault("energy.credits_per_kwh", 100)
	v.SetDefault("energy.initial_supply", 1000000)

	v.SetDefault("carbon.rates", map[string]string{
		"solar":   "0.05",
		"wind":    "0.04",
		"storage": "0.03",
		"grid":    "0",
	})

	v.SetDefault("market.default_prices", map[string]string{
		"solar":   "0.19",
		"wind":    "0.18",
		"storage": "0.24",
		"grid":    "0.16",
	})
	v.SetDefault("market.max_expiry_hours", 24*30)

	v.SetDefault("governance.initial_supply", 1000000)
	v.SetDefault("governance.voting_period", 7*24*time.Hour)

	v.SetDefault("events.channel", "powerchain:events")

	v.SetDefault("settlement.currency", "MYR")
	v.SetDefault("settlement.agent_bic", "POWRMYKL")
}

var envBindings = map[string]string{
	"server.port":              "PORT",
	"logging.level":            "LOG_LEVEL",
	"logging.development":      "LOG_DEVELOPMENT",
	"database.enabled":         "DATABASE_ENABLED",
	"database.host":            "DATABASE_HOST",
	"database.port":            "DATABASE_PORT",
	"database.user":            "DATABASE_USER",
	"database.password":        "DATABASE_PASSWORD",
	"database.name":            "DATABASE_NAME",
	"database.ssl_mode":        "DATABASE_SSL_MODE",
	"redis.host":               "REDIS_HOST",
	"redis.port":               "REDIS_PORT",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"jwt.secret_key":           "JWT_SECRET_KEY",
	"jwt.expiry_hours":         "JWT_EXPIRY_HOURS",
	"ledger.admin":             "LEDGER_ADMIN",
	"ledger.trading_identity":  "LEDGER_TRADING_IDENTITY",
	"energy.credits_per_kwh":   "ENERGY_CREDITS_PER_KWH",
	"energy.initial_supply":    "ENERGY_INITIAL_SUPPLY",
	"governance.voting_period": "GOVERNANCE_VOTING_PERIOD",
	"events.channel":           "EVENTS_CHANNEL",
	"settlement.currency":      "SETTLEMENT_CURRENCY",
}

// Load reads the optional config file, applies environment overrides and
// unmarshals the result. A missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("config.Load: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config.Load: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("config.Load: jwt.secret_key is required")
	}
	return &cfg, nil
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

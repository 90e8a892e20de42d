package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "CONNECTFOUR"
	defaultHTTPAddress         = "127.0.0.1:8080"
	defaultDatabasePath        = "connectfour.db"
	defaultLogLevel            = "info"
	defaultIssuer              = "connectfour"
	defaultTokenTTLMinutes     = 720
	defaultCacheTTLSeconds     = 86400
	minimumSigningSecretLength = 16
)

// AppConfig captures runtime configuration for the saved-game service.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	Issuer        string
	TokenTTL      time.Duration
	RedisAddress  string
	CacheTTL      time.Duration
}

// CacheEnabled reports whether a Redis address was configured.
func (c AppConfig) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisAddress) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.cache_ttl_seconds", defaultCacheTTLSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		Issuer:        configViper.GetString("auth.issuer"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		RedisAddress:  strings.TrimSpace(configViper.GetString("redis.address")),
		CacheTTL:      time.Duration(configViper.GetInt("redis.cache_ttl_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the storage, cache and logging settings, for maintenance
// commands that never issue or validate session tokens.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		RedisAddress: strings.TrimSpace(configViper.GetString("redis.address")),
		CacheTTL:     time.Duration(configViper.GetInt("redis.cache_ttl_seconds")) * time.Second,
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if len(strings.TrimSpace(c.SigningSecret)) < minimumSigningSecretLength {
		return fmt.Errorf("auth.signing_secret must be at least %d characters", minimumSigningSecretLength)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.CacheEnabled() && c.CacheTTL <= 0 {
		return fmt.Errorf("redis.cache_ttl_seconds must be positive when redis.address is set")
	}
	return nil
}

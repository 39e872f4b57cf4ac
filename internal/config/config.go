// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const devSecret = "taskdesk-local-dev-secret"

// Config is the resolved server configuration.
type Config struct {
	Env                  string        `mapstructure:"env"`
	Port                 string        `mapstructure:"port"`
	DatabaseURL          string        `mapstructure:"database_url"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	AdminInviteToken     string        `mapstructure:"admin_invite_token"`
	AdminInviteTokenHash string        `mapstructure:"admin_invite_token_hash"`
	UploadDir            string        `mapstructure:"upload_dir"`
	ClientURL            string        `mapstructure:"client_url"`
	Debug                bool          `mapstructure:"debug"`
	LogLevel             string        `mapstructure:"log_level"`
}

// String omits secrets so the config can be logged.
func (c Config) String() string {
	return fmt.Sprintf("env=%s port=%s db=%t upload_dir=%s client_url=%s debug=%t",
		c.Env, c.Port, c.DatabaseURL != "", c.UploadDir, c.ClientURL, c.Debug)
}

// Memory reports whether the server should run on in-memory stores.
func (c Config) Memory() bool { return c.DatabaseURL == "" }

// Load reads .env files (missing ones are ignored) and the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return FromViper(newViper())
}

// MustLoad is Load that panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("env", EnvLocal)
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "168h")
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("admin_invite_token", "")
	v.SetDefault("admin_invite_token_hash", "")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("client_url", "")
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper resolves and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	switch cfg.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return nil, fmt.Errorf("ENV must be one of local, dev, prod (got %q)", cfg.Env)
	}
	if cfg.JWTSecret == "" {
		if cfg.Env != EnvLocal {
			return nil, fmt.Errorf("JWT_SECRET is required when ENV=%s", cfg.Env)
		}
		cfg.JWTSecret = devSecret
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31 (got %d)", cfg.BcryptCost)
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string        `mapstructure:"PORT"`
	Env                    string        `mapstructure:"ENV"`
	Debug                  bool          `mapstructure:"DEBUG"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL               string        `mapstructure:"REDIS_URL"`
	JWTSecret              string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL         time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL        time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	PasswordExpirationDays int           `mapstructure:"PASSWORD_EXPIRATION_DAYS"`
	WorkerCount            int           `mapstructure:"WORKER_COUNT"`
	SMTPHost               string        `mapstructure:"SMTP_HOST"`
	SMTPPort               int           `mapstructure:"SMTP_PORT"`
	SMTPUser               string        `mapstructure:"SMTP_USER"`
	SMTPPassword           string        `mapstructure:"SMTP_PASSWORD"`
	MailFrom               string        `mapstructure:"MAIL_FROM"`
	CORSOrigins            []string      `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEBUG", false)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("PASSWORD_EXPIRATION_DAYS", 3)
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@clinicore.local")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DEBUG")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("ACCESS_TOKEN_TTL")
	v.BindEnv("REFRESH_TOKEN_TTL")
	v.BindEnv("PASSWORD_EXPIRATION_DAYS")
	v.BindEnv("WORKER_COUNT")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_USER")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("MAIL_FROM")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PasswordExpiration returns the window a provisional password stays valid.
func (c *Config) PasswordExpiration() time.Duration {
	days := c.PasswordExpirationDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run. Production refuses
// to start without a JWT secret, and DEBUG must be off so that provisional
// passwords never reach the logs.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production. " +
				"Refusing to start with an unsigned token configuration")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
		}
		if c.Debug {
			return fmt.Errorf("DEBUG must be false in production")
		}
	}

	if c.PasswordExpirationDays < 0 {
		return fmt.Errorf("PASSWORD_EXPIRATION_DAYS must be positive, got %d", c.PasswordExpirationDays)
	}
	if c.AccessTokenTTL < 0 || c.RefreshTokenTTL < 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.SMTPHost != "" && c.SMTPPort <= 0 {
		return fmt.Errorf("SMTP_PORT must be set when SMTP_HOST is configured")
	}

	return nil
}

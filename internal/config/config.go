// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port              string `mapstructure:"PORT"`
	Env               string `mapstructure:"APP_ENV"`
	DBHost            string `mapstructure:"DB_HOST"`
	DBPort            string `mapstructure:"DB_PORT"`
	DBUser            string `mapstructure:"DB_USER"`
	DBPassword        string `mapstructure:"DB_PASSWORD"`
	DBName            string `mapstructure:"DB_NAME"`
	DBSSLMode         string `mapstructure:"DB_SSLMODE"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	AllowedOrigins    string `mapstructure:"ALLOWED_ORIGINS"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
	WebhookSecret     string `mapstructure:"AUTOMATION_WEBHOOK_SECRET"`
	AppWebhookURL     string `mapstructure:"APP_WEBHOOK_URL"`
	AdminWebhookURL   string `mapstructure:"ADMIN_WEBHOOK_URL"`
	FromEmail         string `mapstructure:"NOTIFICATION_FROM_EMAIL"`
	AppName           string `mapstructure:"APP_NAME"`
	AppURL            string `mapstructure:"APP_URL"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	MaxSlots           int `mapstructure:"MAX_SLOTS"`
	AccessDurationDays int `mapstructure:"ACCESS_DURATION_DAYS"`
	ExpiryWarningDays  int `mapstructure:"EXPIRY_WARNING_DAYS"`

	// OperationPauseMS is the courtesy delay between dashboard operations,
	// keeping the vendor UI from throttling the automation session.
	OperationPauseMS int `mapstructure:"OPERATION_PAUSE_MS"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config.
	// The config file may not exist yet, so the error is ignored.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to merge profile config 'config.%s.yml': %w", env, err)
			}
		}
	}

	// Development defaults
	viper.SetDefault("PORT", "8390")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "greenroom")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("APP_NAME", "BuyMoreMusic")
	viper.SetDefault("APP_URL", "https://buymoremusic.app")
	viper.SetDefault("NOTIFICATION_FROM_EMAIL", "noreply@buymoremusic.app")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("MAX_SLOTS", 25)
	viper.SetDefault("ACCESS_DURATION_DAYS", 7)
	viper.SetDefault("EXPIRY_WARNING_DAYS", 1)
	viper.SetDefault("OPERATION_PAUSE_MS", 2000)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxSlots <= 0 {
		return errors.New("MAX_SLOTS must be positive")
	}
	if c.AccessDurationDays <= 0 {
		return errors.New("ACCESS_DURATION_DAYS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.AdminPasswordHash == "" {
			return errors.New("ADMIN_PASSWORD_HASH is required in production")
		}
		if c.WebhookSecret == "" {
			return errors.New("AUTOMATION_WEBHOOK_SECRET is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

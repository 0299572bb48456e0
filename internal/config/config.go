// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"APP_ENV"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode string `mapstructure:"DB_SCHEMA_MODE"`

	DBAutoMigrateAllowDestructive bool `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int  `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int  `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int  `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	AdminAPIKey string `mapstructure:"ADMIN_API_KEY"`

	FrontendURL           string `mapstructure:"FRONTEND_URL"`
	AllowedOrigins        string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedOriginSuffixes string `mapstructure:"ALLOWED_ORIGIN_SUFFIXES"`
	CookieSecure          bool   `mapstructure:"COOKIE_SECURE"`

	MailDriver         string `mapstructure:"MAIL_DRIVER"`
	AWSRegion          string `mapstructure:"AWS_REGION"`
	AWSAccessKeyID     string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	SESFromEmail       string `mapstructure:"AWS_SES_FROM_EMAIL"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

const (
	MailDriverLog = "log"
	MailDriverSES = "ses"
)

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			log.Printf("No profile-specific config 'config.%s.yml' found, using environment only", env)
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	viper.SetDefault("PORT", "3002")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "dietlog")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ADMIN_API_KEY", "")
	viper.SetDefault("FRONTEND_URL", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("ALLOWED_ORIGIN_SUFFIXES", "lovable.app,lovable.dev")
	viper.SetDefault("COOKIE_SECURE", isProdEnv(env))
	viper.SetDefault("MAIL_DRIVER", MailDriverLog)
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_ACCESS_KEY_ID", "")
	viper.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	viper.SetDefault("AWS_SES_FROM_EMAIL", "")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.MailDriver = strings.ToLower(strings.TrimSpace(config.MailDriver))
	config.FrontendURL = strings.TrimRight(strings.TrimSpace(config.FrontendURL), "/")

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
	if c.AdminAPIKey == "" {
		return errors.New("ADMIN_API_KEY is required")
	}

	switch c.MailDriver {
	case "", MailDriverLog, MailDriverSES:
	default:
		return fmt.Errorf("unsupported MAIL_DRIVER %q", c.MailDriver)
	}
	if c.MailDriver == MailDriverSES && c.SESFromEmail == "" {
		return errors.New("AWS_SES_FROM_EMAIL is required when MAIL_DRIVER=ses")
	}

	if c.FrontendURL != "" {
		if u, err := url.Parse(c.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("FRONTEND_URL %q is not an absolute URL", c.FrontendURL)
		}
	}

	if c.IsProduction() {
		if len(c.AdminAPIKey) < 32 {
			return errors.New("ADMIN_API_KEY must be at least 32 characters in production")
		}
		if c.DatabaseURL == "" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DatabaseURL == "" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
		if !c.CookieSecure {
			log.Println("WARNING: COOKIE_SECURE is false in production. Session cookies will be sent over plain HTTP.")
		}
	} else if len(c.AdminAPIKey) < 32 {
		log.Println("WARNING: ADMIN_API_KEY is shorter than 32 characters. Use a longer key in production.")
	}

	return nil
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return isProdEnv(c.Env)
}

// IsDevelopment reports whether the config targets local development.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(strings.TrimSpace(c.Env))
	return env == "" || env == "development" || env == "dev"
}

// OriginList returns the explicit CORS allow-list, including FRONTEND_URL.
func (c *Config) OriginList() []string {
	origins := splitCSV(c.AllowedOrigins)
	if c.FrontendURL != "" {
		seen := false
		for _, o := range origins {
			if o == c.FrontendURL {
				seen = true
				break
			}
		}
		if !seen {
			origins = append(origins, c.FrontendURL)
		}
	}
	return origins
}

// OriginSuffixes returns the host suffixes that are always allowed by CORS.
func (c *Config) OriginSuffixes() []string {
	return splitCSV(c.AllowedOriginSuffixes)
}

func isProdEnv(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e == "production" || e == "prod"
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}

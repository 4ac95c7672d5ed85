package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultConfigFile is read when CONFIG_FILE is not set
const DefaultConfigFile = "/app/.env"

// Config holds all configuration for the application
type Config struct {
	GitHubToken  string
	GitHubAPIURL string

	SearchDays int
	MinStars   int
	Language   string
	Topics     []string
	TopN       int

	// Schedule is an optional cron expression; empty means run once
	Schedule string
	LogLevel string

	Database DatabaseConfig
}

// DatabaseConfig configures the optional Postgres snapshot store
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a database host was configured
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN returns a postgres:// connection URL for lib/pq. Credentials are
// escaped so any character is allowed in the password.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

// Load loads configuration from environment variables and, if present,
// the .env file named by CONFIG_FILE.
func (c *Config) Load() error {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("CONFIG_FILE", DefaultConfigFile)
	v.SetDefault("GITHUB_API_URL", "https://api.github.com")
	v.SetDefault("SEARCH_DAYS", 7)
	v.SetDefault("MIN_STARS", 300)
	v.SetDefault("TOP_N", 20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)

	configFile := v.GetString("CONFIG_FILE")
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return c.loadFrom(v)
}

func (c *Config) loadFrom(v *viper.Viper) error {
	c.GitHubToken = v.GetString("GITHUB_TOKEN")
	c.GitHubAPIURL = v.GetString("GITHUB_API_URL")

	c.SearchDays = v.GetInt("SEARCH_DAYS")
	if c.SearchDays <= 0 {
		return fmt.Errorf("SEARCH_DAYS must be positive, got %d", c.SearchDays)
	}

	c.MinStars = v.GetInt("MIN_STARS")
	if c.MinStars < 0 {
		return fmt.Errorf("MIN_STARS cannot be negative, got %d", c.MinStars)
	}

	c.TopN = v.GetInt("TOP_N")
	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.TopN)
	}

	c.Language = strings.TrimSpace(v.GetString("LANGUAGE"))
	c.Topics = splitList(v.GetString("TOPICS"))

	c.Schedule = strings.TrimSpace(v.GetString("SCHEDULE"))
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid SCHEDULE %q: %w", c.Schedule, err)
		}
	}

	c.LogLevel = v.GetString("LOG_LEVEL")

	c.Database = DatabaseConfig{
		Host:            v.GetString("POSTGRES_HOST"),
		Port:            v.GetString("POSTGRES_PORT"),
		User:            v.GetString("POSTGRES_USER"),
		Password:        v.GetString("POSTGRES_PASSWORD"),
		Name:            v.GetString("POSTGRES_DB"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
	}

	return nil
}

// splitList splits a comma separated value, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

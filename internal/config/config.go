package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the archiver server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bridge   BridgeConfig
	Archive  ArchiveConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BridgeConfig describes the intermediary bridge service that forwards
// ingest requests to the configured DAR back ends.
type BridgeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ArchiveConfig controls payload composition and the progress poller.
// Targets is the catalogue of DAR names a submission may address.
type ArchiveConfig struct {
	ExportBaseURL string
	SourceName    string
	Targets       []string
	PollInterval  time.Duration
	MaxHops       int
}

type MailConfig struct {
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	From            string
	OperatorAddress string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ARCHIVER_PORT", 8080),
			Env:  envString("ARCHIVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Bridge: BridgeConfig{
			BaseURL: os.Getenv("BRIDGE_BASE_URL"),
			APIKey:  os.Getenv("BRIDGE_API_KEY"),
			Timeout: envDuration("BRIDGE_TIMEOUT", 30*time.Second),
		},
		Archive: ArchiveConfig{
			ExportBaseURL: os.Getenv("ARCHIVE_EXPORT_BASE_URL"),
			SourceName:    envString("ARCHIVE_SOURCE_NAME", "DATAVERSE"),
			Targets:       envList("ARCHIVE_TARGETS", []string{"EASY"}),
			PollInterval:  envDuration("ARCHIVE_POLL_INTERVAL", 10*time.Minute),
			MaxHops:       envInt("ARCHIVE_MAX_HOPS", 10),
		},
		Mail: MailConfig{
			SMTPHost:        os.Getenv("SMTP_HOST"),
			SMTPPort:        envInt("SMTP_PORT", 25),
			SMTPUsername:    os.Getenv("SMTP_USERNAME"),
			SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
			From:            os.Getenv("MAIL_FROM"),
			OperatorAddress: os.Getenv("MAIL_OPERATOR"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Bridge.BaseURL == "" {
		return fmt.Errorf("BRIDGE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Bridge.BaseURL, "http://") && !strings.HasPrefix(c.Bridge.BaseURL, "https://") {
		return fmt.Errorf("BRIDGE_BASE_URL must start with http:// or https://, got %q", c.Bridge.BaseURL)
	}

	if c.Archive.ExportBaseURL == "" {
		return fmt.Errorf("ARCHIVE_EXPORT_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Archive.ExportBaseURL, "http://") && !strings.HasPrefix(c.Archive.ExportBaseURL, "https://") {
		return fmt.Errorf("ARCHIVE_EXPORT_BASE_URL must start with http:// or https://, got %q", c.Archive.ExportBaseURL)
	}

	if len(c.Archive.Targets) == 0 {
		return fmt.Errorf("ARCHIVE_TARGETS must name at least one DAR target")
	}
	if c.Archive.MaxHops <= 0 {
		return fmt.Errorf("ARCHIVE_MAX_HOPS must be positive, got %d", c.Archive.MaxHops)
	}
	if c.Archive.PollInterval <= 0 {
		return fmt.Errorf("ARCHIVE_POLL_INTERVAL must be positive, got %s", c.Archive.PollInterval)
	}

	if c.Mail.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.Mail.From == "" {
		return fmt.Errorf("MAIL_FROM is required")
	}
	if c.Mail.OperatorAddress == "" {
		return fmt.Errorf("MAIL_OPERATOR is required")
	}

	return nil
}

// HasTarget reports whether name is in the configured target catalogue.
func (c ArchiveConfig) HasTarget(name string) bool {
	for _, t := range c.Targets {
		if t == name {
			return true
		}
	}
	return false
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// Package config loads process configuration from an optional YAML file and
// the environment, then fills the remaining gaps with defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"github.com/robfig/cron"
)

// FileEnv names the environment variable pointing at the YAML config file.
const FileEnv = "CONFIG_FILE"

var (
	validBackends  = []string{"memory", "sqlite", "postgres", "mongo"}
	validAuthModes = []string{"google", "static"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json"}
)

type Config struct {
	// HTTP server
	Port               string   `json:"port" env:"PORT"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins []string `json:"corsAllowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Record store
	DataBackend     string `json:"dataBackend" env:"DATA_BACKEND"`
	SQLiteDBPath    string `json:"sqliteDbPath" env:"SQLITE_DB_PATH"`
	PostgresDSN     string `json:"postgresDsn" env:"POSTGRES_DSN"`
	MongoURI        string `json:"mongoUri" env:"MONGO_URI"`
	MongoDatabase   string `json:"mongoDatabase" env:"MONGO_DATABASE"`
	MongoCollection string `json:"mongoCollection" env:"MONGO_COLLECTION"`

	// AMQP change events. An empty URL disables them.
	AMQPURL      string `json:"amqpUrl" env:"AMQP_URL"`
	AMQPExchange string `json:"amqpExchange" env:"AMQP_EXCHANGE"`
	AMQPQueue    string `json:"amqpQueue" env:"AMQP_QUEUE"`

	// Search mirror
	ElasticsearchURLs  []string `json:"elasticsearchUrls" env:"ELASTICSEARCH_URLS" envSeparator:","`
	ElasticsearchIndex string   `json:"elasticsearchIndex" env:"ELASTICSEARCH_INDEX"`
	ReindexSchedule    string   `json:"reindexSchedule" env:"REINDEX_SCHEDULE"`

	// Identity
	AuthMode       string `json:"authMode" env:"AUTH_MODE"`
	AuthAudience   string `json:"authAudience" env:"AUTH_AUDIENCE"`
	AuthTokensFile string `json:"authTokensFile" env:"AUTH_TOKENS_FILE"`

	// Logging
	LogLevel  string `json:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" env:"LOG_FORMAT"`
}

// Defaults returns the values used for anything neither the file nor the
// environment sets.
func Defaults() Config {
	return Config{
		Port:               "8081",
		RateLimitPerMinute: 60,
		CORSAllowedOrigins: []string{"*"},
		DataBackend:        "memory",
		SQLiteDBPath:       "./data/finease.db",
		MongoDatabase:      "fin_db",
		MongoCollection:    "transactions",
		AMQPExchange:       "finease",
		AMQPQueue:          "transaction_events",
		ElasticsearchIndex: "finease-transactions",
		ReindexSchedule:    "@every 6h",
		AuthMode:           "google",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads the file named by CONFIG_FILE (if any), overlays the
// environment and fills the rest from Defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv(FileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the HTTP server and report CLI need and
// returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errors = append(errors, c.storeErrors()...)

	if c.AMQPURL != "" {
		errors = append(errors, c.amqpErrors()...)
	}

	if !oneOf(c.AuthMode, validAuthModes) {
		errors = append(errors, fmt.Sprintf("invalid auth mode '%s': must be one of %v", c.AuthMode, validAuthModes))
	}
	if c.AuthMode == "google" && c.AuthAudience == "" {
		errors = append(errors, "AUTH_AUDIENCE is required when using google auth")
	}
	if c.AuthMode == "static" {
		if c.AuthTokensFile == "" {
			errors = append(errors, "AUTH_TOKENS_FILE is required when using static auth")
		} else if _, err := os.Stat(c.AuthTokensFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("auth tokens file does not exist: %s", c.AuthTokensFile))
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	errors = append(errors, c.logErrors()...)

	return combine(errors)
}

// ValidateIndexer checks the settings the search indexer needs.
func (c *Config) ValidateIndexer() error {
	var errors []string

	errors = append(errors, c.storeErrors()...)

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the indexer")
	} else {
		errors = append(errors, c.amqpErrors()...)
	}

	if len(c.ElasticsearchURLs) == 0 {
		errors = append(errors, "ELASTICSEARCH_URLS is required for the indexer")
	}
	for _, raw := range c.ElasticsearchURLs {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid Elasticsearch URL '%s'", raw))
		}
	}

	if _, err := cron.Parse(c.ReindexSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid reindex schedule '%s': %v", c.ReindexSchedule, err))
	}

	errors = append(errors, c.logErrors()...)

	return combine(errors)
}

// ValidateReport checks the settings the operator report CLI needs.
func (c *Config) ValidateReport() error {
	var errors []string
	errors = append(errors, c.storeErrors()...)
	errors = append(errors, c.logErrors()...)
	return combine(errors)
}

func (c *Config) storeErrors() []string {
	var errors []string

	if !oneOf(c.DataBackend, validBackends) {
		return []string{fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends)}
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
			break
		}
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case "mongo":
		if c.MongoURI == "" {
			errors = append(errors, "MONGO_URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errors = append(errors, fmt.Sprintf("invalid Mongo URI '%s': scheme must be 'mongodb' or 'mongodb+srv'", c.MongoURI))
		}
	}

	return errors
}

func (c *Config) amqpErrors() []string {
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func (c *Config) logErrors() []string {
	var errors []string
	if !oneOf(strings.ToLower(c.LogLevel), validLogLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !oneOf(strings.ToLower(c.LogFormat), validFormats) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}
	return errors
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

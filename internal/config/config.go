// Package config provides configuration management for the actionables services.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"gopkg.in/yaml.v3"
)

// ErrInvalidContextRegex is returned when a context tag pattern does not compile.
var ErrInvalidContextRegex = errors.New("invalid context tag regex")

// Config holds all actionables configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Redis    RedisConfig    `yaml:"redis"`
	Import   ImportConfig   `yaml:"import"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSNEnv   string `yaml:"dsn_env"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// Neo4jConfig holds fact graph connection and resilience settings.
type Neo4jConfig struct {
	URI         string        `yaml:"uri"`
	User        string        `yaml:"user"`
	PasswordEnv string        `yaml:"password_env"`
	Database    string        `yaml:"database"`
	Timeout     time.Duration `yaml:"timeout"`

	CircuitBreaker  bool          `yaml:"circuit_breaker"`
	MaxFailures     uint32        `yaml:"max_failures"`
	CircuitTimeout  time.Duration `yaml:"circuit_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// RedisConfig holds the job lock backend settings.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}

// ContextPattern maps a context name regex onto a context type label.
type ContextPattern struct {
	Regex string `yaml:"regex"`
	Type  string `yaml:"type"` // INVES, IR, CERT
}

// ImportConfig holds importer, tagging and sweeper settings.
type ImportConfig struct {
	ReportTypes        []string         `yaml:"report_types"`
	Exporters          []string         `yaml:"exporters"`
	ContextPatterns    []ContextPattern `yaml:"context_patterns"`
	OutdatedTag        string           `yaml:"outdated_tag"`
	SystemUser         string           `yaml:"system_user"`
	DefaultOrigin      string           `yaml:"default_origin"`
	DefaultProcessing  string           `yaml:"default_processing"`
	OutdateAfterImport bool             `yaml:"outdate_after_import"`
	Schedule           string           `yaml:"schedule"`
	Lookback           time.Duration    `yaml:"lookback"`
}

// APIConfig holds HTTP and gRPC server settings.
type APIConfig struct {
	Addr            string              `yaml:"addr"`
	GRPCAddr        string              `yaml:"grpc_addr"`
	AuthTokenEnv    string              `yaml:"auth_token_env"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	Groups          map[string][]string `yaml:"groups"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSNEnv:   "DATABASE_URL",
			MaxConns: 10,
			Migrate:  true,
		},
		Neo4j: Neo4jConfig{
			URI:             "neo4j://localhost:7687",
			User:            "neo4j",
			PasswordEnv:     "NEO4J_PASSWORD",
			Database:        "neo4j",
			Timeout:         30 * time.Second,
			CircuitBreaker:  true,
			MaxFailures:     5,
			CircuitTimeout:  30 * time.Second,
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			PasswordEnv: "REDIS_PASSWORD",
			LockTTL:     30 * time.Minute,
		},
		Import: ImportConfig{
			ReportTypes: []string{"STIX_Package"},
			Exporters:   []string{"hashes", "ips", "fqdns", "urls"},
			ContextPatterns: []ContextPattern{
				{Regex: `^INVES-[0-9]+$`, Type: "INVES"},
				{Regex: `^IR-[0-9]+$`, Type: "IR"},
				{Regex: `^CERT-[0-9]+$`, Type: "CERT"},
			},
			OutdatedTag:        "OUTDATED",
			SystemUser:         "actionables",
			DefaultOrigin:      "external-uncertain",
			DefaultProcessing:  "automated",
			OutdateAfterImport: true,
			Schedule:           "*/15 * * * *",
			Lookback:           24 * time.Hour,
		},
		API: APIConfig{
			Addr:            "localhost:8080",
			GRPCAddr:        "localhost:50051",
			AuthTokenEnv:    "API_AUTH_TOKEN",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Groups: map[string][]string{
				"ips":    {domain.TypeIPv4, domain.TypeIPv6},
				"hashes": {domain.TypeMD5, domain.TypeSHA1, domain.TypeSHA256, domain.TypeSHA512},
				"fqdns":  {domain.TypeFQDN},
				"urls":   {domain.TypeURL},
				"emails": {domain.TypeEmail},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration against the available exporter names.
func (c *Config) Validate(knownExporters []string) error {
	if _, err := c.Import.CompileContextPatterns(); err != nil {
		return err
	}
	if len(c.Import.Exporters) == 0 {
		return errors.New("import.exporters: at least one exporter must be active")
	}
	known := make(map[string]bool, len(knownExporters))
	for _, n := range knownExporters {
		known[n] = true
	}
	for _, n := range c.Import.Exporters {
		if !known[n] {
			return fmt.Errorf("import.exporters: unknown exporter %q", n)
		}
	}
	if c.Import.OutdatedTag == "" {
		return errors.New("import.outdated_tag must not be empty")
	}
	if c.Import.Lookback <= 0 {
		return errors.New("import.lookback must be positive")
	}
	return nil
}

// CompileContextPatterns compiles the context tag regexes in order.
func (c ImportConfig) CompileContextPatterns() ([]tagging.ContextPattern, error) {
	out := make([]tagging.ContextPattern, 0, len(c.ContextPatterns))
	for i, p := range c.ContextPatterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %d (%q): %v", ErrInvalidContextRegex, i, p.Regex, err)
		}
		ct, ok := domain.ParseContextType(p.Type)
		if !ok {
			ct = domain.ContextInvestigation
		}
		out = append(out, tagging.ContextPattern{Regex: re, Type: ct})
	}
	return out, nil
}

// Secret resolves a *_env reference. An empty name yields an empty value.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

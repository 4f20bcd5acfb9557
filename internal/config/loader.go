package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/runwatch/internal/kafka"
	"github.com/mattjoyce/runwatch/internal/storage"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates and validates the configuration file at
// configPath. Fields absent from the file keep their Defaults values.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML config bytes over Defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with its value. Unset variables are left in
// place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch storage.Dialect(cfg.Database.Driver) {
	case storage.DialectSQLite:
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case storage.DialectPostgres:
		if err := unresolved("database.url", cfg.Database.URL); err != nil {
			return err
		}
		if err := cfg.StorageOptions().Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres (got %q)", cfg.Database.Driver)
	}

	for i, b := range cfg.Kafka.Brokers {
		if err := unresolved(fmt.Sprintf("kafka.brokers[%d]", i), b); err != nil {
			return err
		}
	}
	if cfg.Kafka.TransactionTimeout <= 0 {
		return fmt.Errorf("kafka.transaction_timeout must be positive")
	}
	if err := cfg.KafkaConfig().Validate(); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if err := unresolved("api.token", cfg.API.Token); err != nil {
			return err
		}
	}
	return nil
}

// StorageOptions maps the database section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver: storage.Dialect(c.Database.Driver),
		Path:   c.Database.Path,
		Postgres: storage.PostgresConfig{
			URL:             c.Database.URL,
			PingTimeout:     c.Database.PingTimeout,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		},
	}
}

// KafkaConfig maps the kafka section onto kafka.Config.
func (c *Config) KafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:            c.Kafka.Brokers,
		ClientID:           c.Kafka.ClientID,
		GroupID:            c.Kafka.GroupID,
		TransactionalID:    c.Kafka.TransactionalID,
		TransactionTimeout: c.Kafka.TransactionTimeout,
		Topics: kafka.Topics{
			Unidentified: c.Kafka.Topics.Unidentified,
			Scheduled:    c.Kafka.Topics.Scheduled,
			Identified:   c.Kafka.Topics.Identified,
			DeadLetter:   c.Kafka.Topics.DeadLetter,
		},
	}
}

package config

import "time"

// Config represents the complete runwatch configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	API      APIConfig      `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig selects the backend and its pool settings. Path is used by
// sqlite, URL and the pool settings by postgres.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	URL             string        `yaml:"url"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// KafkaConfig defines the transactional consumer/producer.
type KafkaConfig struct {
	Brokers            []string      `yaml:"brokers"`
	ClientID           string        `yaml:"client_id"`
	GroupID            string        `yaml:"group_id"`
	TransactionalID    string        `yaml:"transactional_id"`
	TransactionTimeout time.Duration `yaml:"transaction_timeout"`
	Topics             TopicsConfig  `yaml:"topics"`
}

// TopicsConfig names the topics read and written by the service.
type TopicsConfig struct {
	Unidentified string `yaml:"unidentified"`
	Scheduled    string `yaml:"scheduled"`
	Identified   string `yaml:"identified"`
	DeadLetter   string `yaml:"dead_letter"`
}

// APIConfig defines ops HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Token, when set, protects the activity routes.
	Token string `yaml:"token"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "runwatch",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "./data/runwatch.db",
			PingTimeout:     2 * time.Second,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ClientID:           "runwatch",
			GroupID:            "runwatch-run-manager",
			TransactionalID:    "runwatch-run-manager",
			TransactionTimeout: 60 * time.Second,
			Topics: TopicsConfig{
				Unidentified: "unidentified_events",
				Scheduled:    "scheduled_events",
				Identified:   "identified_events",
				DeadLetter:   "dead_letter_events",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}

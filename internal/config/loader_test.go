package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/runwatch/internal/storage"
)

const minimalYAML = `
kafka:
  brokers: [localhost:9092]
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config keeps defaults",
			yaml: minimalYAML,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "runwatch" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.Database.Driver != "sqlite" || cfg.Database.Path == "" {
					t.Errorf("database defaults not applied: %+v", cfg.Database)
				}
				if cfg.Kafka.Topics.Unidentified != "unidentified_events" {
					t.Errorf("topic default not applied: %+v", cfg.Kafka.Topics)
				}
				if cfg.Kafka.TransactionTimeout != 60*time.Second {
					t.Errorf("transaction_timeout = %v", cfg.Kafka.TransactionTimeout)
				}
				if cfg.API.Enabled {
					t.Error("api should be disabled by default")
				}
			},
		},
		{
			name: "full postgres config",
			yaml: `
service:
  name: rm-prod
  log_level: debug
database:
  driver: postgres
  url: postgres://rm@db/observe
  ping_timeout: 5s
  max_open_conns: 8
  max_idle_conns: 4
  conn_max_lifetime: 1h
  conn_max_idle_time: 10m
kafka:
  brokers: [k1:9092, k2:9092]
  client_id: rm
  group_id: rm-group
  transactional_id: rm-tx
  transaction_timeout: 30s
  topics:
    unidentified: in
    scheduled: sched
    identified: out
    dead_letter: dlq
api:
  enabled: true
  listen: 0.0.0.0:9000
  token: abc
`,
			checkFn: func(t *testing.T, cfg *Config) {
				opts := cfg.StorageOptions()
				if opts.Driver != storage.DialectPostgres {
					t.Errorf("driver = %q", opts.Driver)
				}
				if opts.Postgres.URL != "postgres://rm@db/observe" || opts.Postgres.MaxOpenConns != 8 {
					t.Errorf("postgres options = %+v", opts.Postgres)
				}
				if opts.Postgres.ConnMaxLifetime != time.Hour {
					t.Errorf("conn_max_lifetime = %v", opts.Postgres.ConnMaxLifetime)
				}
				kc := cfg.KafkaConfig()
				if len(kc.Brokers) != 2 || kc.GroupID != "rm-group" || kc.TransactionalID != "rm-tx" {
					t.Errorf("kafka config = %+v", kc)
				}
				if kc.Topics.DeadLetter != "dlq" || kc.Topics.Scheduled != "sched" {
					t.Errorf("topics = %+v", kc.Topics)
				}
				if cfg.API.Listen != "0.0.0.0:9000" || cfg.API.Token != "abc" {
					t.Errorf("api = %+v", cfg.API)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
database:
  driver: postgres
  url: ${RW_TEST_DB_URL}
kafka:
  brokers: ["${RW_TEST_BROKER}"]
`,
			env: map[string]string{"RW_TEST_DB_URL": "postgres://x@y/z", "RW_TEST_BROKER": "broker:9092"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Database.URL != "postgres://x@y/z" {
					t.Errorf("url = %q", cfg.Database.URL)
				}
				if cfg.Kafka.Brokers[0] != "broker:9092" {
					t.Errorf("broker = %q", cfg.Kafka.Brokers[0])
				}
			},
		},
		{
			name: "unset env var is reported",
			yaml: `
database:
  driver: postgres
  url: ${RW_TEST_UNSET_URL}
kafka:
  brokers: [localhost:9092]
`,
			wantErr: "${RW_TEST_UNSET_URL} is not set",
		},
		{
			name:    "missing brokers",
			yaml:    "service:\n  name: x\n",
			wantErr: "brokers are required",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "unknown driver",
			yaml:    minimalYAML + "database:\n  driver: mysql\n",
			wantErr: "database.driver",
		},
		{
			name:    "postgres pool validation",
			yaml:    minimalYAML + "database:\n  driver: postgres\n  url: postgres://a@b/c\n  max_idle_conns: 10\n",
			wantErr: "max_idle_conns",
		},
		{
			name:    "unknown field rejected",
			yaml:    minimalYAML + "plugins_dir: ./plugins\n",
			wantErr: "field plugins_dir not found",
		},
		{
			name:    "api enabled without listen",
			yaml:    minimalYAML + "api:\n  enabled: true\n  listen: \"\"\n",
			wantErr: "api.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestComputeBlake3Hash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(minimalYAML+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ha, err := ComputeBlake3Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(ha) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(ha))
	}
	again, _ := ComputeBlake3Hash(a)
	hb, _ := ComputeBlake3Hash(b)
	if ha != again || ha == hb {
		t.Fatalf("hash not stable or not content-sensitive")
	}
}

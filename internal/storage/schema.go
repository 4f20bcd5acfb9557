package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is portable between SQLite and PostgreSQL: ids and timestamps are
// TEXT, booleans are INTEGER.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS component (
  id          TEXT PRIMARY KEY,
  project_id  TEXT NOT NULL,
  type        TEXT NOT NULL,
  key         TEXT NOT NULL,
  name        TEXT NOT NULL DEFAULT '',
  tool        TEXT NOT NULL DEFAULT '',
  created_on  TEXT NOT NULL,
  UNIQUE (project_id, type, key)
);`,
	`CREATE TABLE IF NOT EXISTS run (
  id                  TEXT PRIMARY KEY,
  pipeline_id         TEXT NOT NULL,
  key                 TEXT,
  name                TEXT NOT NULL DEFAULT '',
  status              TEXT NOT NULL,
  start_time          TEXT,
  end_time            TEXT,
  expected_start_time TEXT,
  expected_end_time   TEXT,
  instance_set_id     TEXT,
  created_on          TEXT NOT NULL,
  UNIQUE (pipeline_id, key)
);`,
	`CREATE TABLE IF NOT EXISTS task (
  id          TEXT PRIMARY KEY,
  pipeline_id TEXT NOT NULL,
  key         TEXT NOT NULL,
  name        TEXT NOT NULL DEFAULT '',
  required    INTEGER NOT NULL DEFAULT 0,
  UNIQUE (pipeline_id, key)
);`,
	`CREATE TABLE IF NOT EXISTS run_task (
  id         TEXT PRIMARY KEY,
  run_id     TEXT NOT NULL,
  task_id    TEXT NOT NULL,
  status     TEXT NOT NULL,
  start_time TEXT,
  end_time   TEXT,
  required   INTEGER NOT NULL DEFAULT 0,
  UNIQUE (run_id, task_id)
);`,
	`CREATE TABLE IF NOT EXISTS journey (
  id         TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  name       TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS journey_dag_edge (
  id         TEXT PRIMARY KEY,
  journey_id TEXT NOT NULL,
  left_id    TEXT,
  right_id   TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS instance_rule (
  id                TEXT PRIMARY KEY,
  journey_id        TEXT NOT NULL,
  action            TEXT NOT NULL,
  batch_pipeline_id TEXT,
  expression        TEXT,
  timezone          TEXT
);`,
	`CREATE TABLE IF NOT EXISTS instance (
  id          TEXT PRIMARY KEY,
  journey_id  TEXT NOT NULL,
  start_time  TEXT NOT NULL,
  end_time    TEXT,
  payload_key TEXT,
  start_type  TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS instance_set (
  id     TEXT PRIMARY KEY,
  digest TEXT NOT NULL UNIQUE
);`,
	`CREATE TABLE IF NOT EXISTS instance_set_member (
  instance_set_id TEXT NOT NULL,
  instance_id     TEXT NOT NULL,
  PRIMARY KEY (instance_set_id, instance_id)
);`,
	`CREATE TABLE IF NOT EXISTS run_alert (
  id                  TEXT PRIMARY KEY,
  run_id              TEXT NOT NULL,
  type                TEXT NOT NULL,
  level               TEXT NOT NULL,
  description         TEXT NOT NULL,
  expected_start_time TEXT,
  expected_end_time   TEXT,
  created_on          TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS instance_alert (
  id          TEXT PRIMARY KEY,
  instance_id TEXT NOT NULL,
  type        TEXT NOT NULL,
  level       TEXT NOT NULL,
  description TEXT NOT NULL,
  created_on  TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS instance_alert_component (
  instance_alert_id TEXT NOT NULL,
  component_id      TEXT NOT NULL,
  PRIMARY KEY (instance_alert_id, component_id)
);`,
	`CREATE TABLE IF NOT EXISTS test_outcome (
  id              TEXT PRIMARY KEY,
  component_id    TEXT NOT NULL,
  run_id          TEXT,
  task_id         TEXT,
  run_task_id     TEXT,
  instance_set_id TEXT,
  name            TEXT NOT NULL,
  key             TEXT NOT NULL DEFAULT '',
  status          TEXT NOT NULL,
  description     TEXT NOT NULL DEFAULT '',
  type            TEXT NOT NULL DEFAULT '',
  result          TEXT NOT NULL DEFAULT '',
  start_time      TEXT,
  end_time        TEXT,
  metric_value    DOUBLE PRECISION,
  min_threshold   DOUBLE PRECISION,
  max_threshold   DOUBLE PRECISION,
  dimensions      TEXT,
  external_url    TEXT NOT NULL DEFAULT '',
  integrations    TEXT
);`,
	`CREATE TABLE IF NOT EXISTS dataset_operation (
  id              TEXT PRIMARY KEY,
  dataset_id      TEXT NOT NULL,
  instance_set_id TEXT,
  operation       TEXT NOT NULL,
  path            TEXT NOT NULL DEFAULT '',
  operation_time  TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS event_entity (
  id                 TEXT PRIMARY KEY,
  version            INTEGER NOT NULL,
  type               TEXT NOT NULL,
  project_id         TEXT NOT NULL,
  component_id       TEXT,
  run_id             TEXT,
  task_id            TEXT,
  run_task_id        TEXT,
  instance_set_id    TEXT,
  event_timestamp    TEXT NOT NULL,
  received_timestamp TEXT NOT NULL,
  payload            BYTEA
);`,
	`CREATE INDEX IF NOT EXISTS run_pipeline_status_idx ON run(pipeline_id, status);`,
	`CREATE INDEX IF NOT EXISTS run_instance_set_idx ON run(instance_set_id);`,
	`CREATE INDEX IF NOT EXISTS journey_dag_edge_journey_idx ON journey_dag_edge(journey_id);`,
	`CREATE INDEX IF NOT EXISTS journey_dag_edge_right_idx ON journey_dag_edge(right_id);`,
	`CREATE INDEX IF NOT EXISTS journey_dag_edge_left_idx ON journey_dag_edge(left_id);`,
	`CREATE INDEX IF NOT EXISTS instance_journey_active_idx ON instance(journey_id, end_time);`,
	`CREATE INDEX IF NOT EXISTS instance_set_member_instance_idx ON instance_set_member(instance_id);`,
	`CREATE INDEX IF NOT EXISTS instance_alert_instance_type_idx ON instance_alert(instance_id, type);`,
	`CREATE INDEX IF NOT EXISTS run_alert_run_idx ON run_alert(run_id);`,
	`CREATE INDEX IF NOT EXISTS test_outcome_run_idx ON test_outcome(run_id);`,
}

// Tables lists every table Bootstrap creates.
var Tables = []string{
	"component", "run", "task", "run_task", "journey", "journey_dag_edge",
	"instance_rule", "instance", "instance_set", "instance_set_member",
	"run_alert", "instance_alert", "instance_alert_component", "test_outcome",
	"dataset_operation", "event_entity",
}

// Bootstrap creates tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

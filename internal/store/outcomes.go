package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/runwatch/internal/model"
)

// CreateTestOutcome inserts o.
func (s *Store) CreateTestOutcome(ctx context.Context, o *model.TestOutcome) error {
	s.ensureID(&o.ID)

	var dims any
	if len(o.Dimensions) > 0 {
		raw, err := json.Marshal(o.Dimensions)
		if err != nil {
			return fmt.Errorf("encode dimensions: %w", err)
		}
		dims = string(raw)
	}
	var integrations any
	if len(o.Integrations) > 0 {
		integrations = string(o.Integrations)
	}

	_, err := s.exec(ctx, `
INSERT INTO test_outcome(id, component_id, run_id, task_id, run_task_id, instance_set_id,
  name, key, status, description, type, result, start_time, end_time,
  metric_value, min_threshold, max_threshold, dimensions, external_url, integrations)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ComponentID, nullString(o.RunID), nullString(o.TaskID), nullString(o.RunTaskID),
		nullString(o.InstanceSetID), o.Name, o.Key, string(o.Status), o.Description, o.Type, o.Result,
		nullTime(o.StartTime), nullTime(o.EndTime),
		nullFloat(o.MetricValue), nullFloat(o.MinThreshold), nullFloat(o.MaxThreshold),
		dims, o.ExternalURL, integrations)
	if err != nil {
		return fmt.Errorf("insert test outcome: %w", err)
	}
	return nil
}

// TestOutcomesByComponent lists a component's outcomes by name.
func (s *Store) TestOutcomesByComponent(ctx context.Context, componentID string) ([]*model.TestOutcome, error) {
	rows, err := s.query(ctx, `
SELECT id, component_id, run_id, task_id, run_task_id, instance_set_id,
  name, key, status, description, type, result, start_time, end_time,
  metric_value, min_threshold, max_threshold, dimensions, external_url, integrations
FROM test_outcome WHERE component_id = ? ORDER BY name, id`, componentID)
	if err != nil {
		return nil, fmt.Errorf("list test outcomes: %w", err)
	}
	defer rows.Close()

	var out []*model.TestOutcome
	for rows.Next() {
		var (
			o                               model.TestOutcome
			runID, taskID, runTaskID, setID sql.NullString
			start, end, dims, integrations  sql.NullString
			status                          string
			metric, minT, maxT              sql.NullFloat64
		)
		if err := rows.Scan(&o.ID, &o.ComponentID, &runID, &taskID, &runTaskID, &setID,
			&o.Name, &o.Key, &status, &o.Description, &o.Type, &o.Result, &start, &end,
			&metric, &minT, &maxT, &dims, &o.ExternalURL, &integrations); err != nil {
			return nil, err
		}
		o.RunID = fromNullString(runID)
		o.TaskID = fromNullString(taskID)
		o.RunTaskID = fromNullString(runTaskID)
		o.InstanceSetID = fromNullString(setID)
		o.Status = model.TestStatus(status)
		o.MetricValue = fromNullFloat(metric)
		o.MinThreshold = fromNullFloat(minT)
		o.MaxThreshold = fromNullFloat(maxT)
		if o.StartTime, err = fromNullTime(start); err != nil {
			return nil, err
		}
		if o.EndTime, err = fromNullTime(end); err != nil {
			return nil, err
		}
		if dims.Valid {
			if err := json.Unmarshal([]byte(dims.String), &o.Dimensions); err != nil {
				return nil, fmt.Errorf("decode dimensions: %w", err)
			}
		}
		if integrations.Valid {
			o.Integrations = json.RawMessage(integrations.String)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// CreateDatasetOperation inserts op.
func (s *Store) CreateDatasetOperation(ctx context.Context, op *model.DatasetOperation) error {
	s.ensureID(&op.ID)
	_, err := s.exec(ctx, `
INSERT INTO dataset_operation(id, dataset_id, instance_set_id, operation, path, operation_time)
VALUES(?, ?, ?, ?, ?, ?)`,
		op.ID, op.DatasetID, nullString(op.InstanceSetID), string(op.Operation), op.Path,
		formatTime(op.OperationTime))
	if err != nil {
		return fmt.Errorf("insert dataset operation: %w", err)
	}
	return nil
}

// DatasetOperations lists a dataset's operations by time.
func (s *Store) DatasetOperations(ctx context.Context, datasetID string) ([]*model.DatasetOperation, error) {
	rows, err := s.query(ctx, `
SELECT id, dataset_id, instance_set_id, operation, path, operation_time
FROM dataset_operation WHERE dataset_id = ? ORDER BY operation_time, id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list dataset operations: %w", err)
	}
	defer rows.Close()

	var out []*model.DatasetOperation
	for rows.Next() {
		var (
			op         model.DatasetOperation
			setID      sql.NullString
			kind, when string
		)
		if err := rows.Scan(&op.ID, &op.DatasetID, &setID, &kind, &op.Path, &when); err != nil {
			return nil, err
		}
		op.InstanceSetID = fromNullString(setID)
		op.Operation = model.DatasetOperationType(kind)
		if op.OperationTime, err = parseTime(when); err != nil {
			return nil, err
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

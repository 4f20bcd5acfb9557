package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattjoyce/runwatch/internal/model"
)

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t        model.Task
		required int64
	)
	if err := row.Scan(&t.ID, &t.PipelineID, &t.Key, &t.Name, &required); err != nil {
		return nil, handleNotFound(err)
	}
	t.Required = required != 0
	return &t, nil
}

// GetTaskByKey loads the pipeline's task with key.
func (s *Store) GetTaskByKey(ctx context.Context, pipelineID, key string) (*model.Task, error) {
	t, err := scanTask(s.queryRow(ctx,
		"SELECT id, pipeline_id, key, name, required FROM task WHERE pipeline_id = ? AND key = ?",
		pipelineID, key))
	if err != nil {
		return nil, fmt.Errorf("get task %q: %w", key, err)
	}
	return t, nil
}

// CreateTask inserts t.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	s.ensureID(&t.ID)
	_, err := s.exec(ctx,
		"INSERT INTO task(id, pipeline_id, key, name, required) VALUES(?, ?, ?, ?, ?)",
		t.ID, t.PipelineID, t.Key, t.Name, boolInt(t.Required))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask persists the task name and required flag.
func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	_, err := s.exec(ctx, "UPDATE task SET name = ?, required = ? WHERE id = ?",
		t.Name, boolInt(t.Required), t.ID)
	if err != nil {
		return fmt.Errorf("update task %q: %w", t.ID, err)
	}
	return nil
}

// RequiredTasks lists the pipeline's required tasks.
func (s *Store) RequiredTasks(ctx context.Context, pipelineID string) ([]*model.Task, error) {
	rows, err := s.query(ctx,
		"SELECT id, pipeline_id, key, name, required FROM task WHERE pipeline_id = ? AND required = 1 ORDER BY key",
		pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list required tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const runTaskColumns = "id, run_id, task_id, status, start_time, end_time, required"

func scanRunTask(row rowScanner) (*model.RunTask, error) {
	var (
		rt         model.RunTask
		status     string
		start, end sql.NullString
		required   int64
	)
	if err := row.Scan(&rt.ID, &rt.RunID, &rt.TaskID, &status, &start, &end, &required); err != nil {
		return nil, handleNotFound(err)
	}
	rt.Status = model.RunStatus(status)
	rt.Required = required != 0

	var err error
	if rt.StartTime, err = fromNullTime(start); err != nil {
		return nil, err
	}
	if rt.EndTime, err = fromNullTime(end); err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetRunTask loads the run task for (runID, taskID).
func (s *Store) GetRunTask(ctx context.Context, runID, taskID string) (*model.RunTask, error) {
	rt, err := scanRunTask(s.queryRow(ctx,
		"SELECT "+runTaskColumns+" FROM run_task WHERE run_id = ? AND task_id = ?", runID, taskID))
	if err != nil {
		return nil, fmt.Errorf("get run task: %w", err)
	}
	return rt, nil
}

// CreateRunTask inserts rt.
func (s *Store) CreateRunTask(ctx context.Context, rt *model.RunTask) error {
	s.ensureID(&rt.ID)
	_, err := s.exec(ctx, `
INSERT INTO run_task(`+runTaskColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.RunID, rt.TaskID, string(rt.Status),
		nullTime(rt.StartTime), nullTime(rt.EndTime), boolInt(rt.Required))
	if err != nil {
		return fmt.Errorf("insert run task: %w", err)
	}
	return nil
}

// CreateRunTasks inserts every run task that does not exist yet.
func (s *Store) CreateRunTasks(ctx context.Context, rts []*model.RunTask) error {
	for _, rt := range rts {
		s.ensureID(&rt.ID)
		_, err := s.exec(ctx, `
INSERT INTO run_task(`+runTaskColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, task_id) DO NOTHING`,
			rt.ID, rt.RunID, rt.TaskID, string(rt.Status),
			nullTime(rt.StartTime), nullTime(rt.EndTime), boolInt(rt.Required))
		if err != nil {
			return fmt.Errorf("insert run task: %w", err)
		}
	}
	return nil
}

// UpdateRunTask persists the status and times of rt.
func (s *Store) UpdateRunTask(ctx context.Context, rt *model.RunTask) error {
	_, err := s.exec(ctx,
		"UPDATE run_task SET status = ?, start_time = ?, end_time = ?, required = ? WHERE id = ?",
		string(rt.Status), nullTime(rt.StartTime), nullTime(rt.EndTime), boolInt(rt.Required), rt.ID)
	if err != nil {
		return fmt.Errorf("update run task %q: %w", rt.ID, err)
	}
	return nil
}

// SetRunTaskStatus moves the run's tasks in status from to status to.
func (s *Store) SetRunTaskStatus(ctx context.Context, runID string, from, to model.RunStatus) (int64, error) {
	res, err := s.exec(ctx,
		"UPDATE run_task SET status = ? WHERE run_id = ? AND status = ?",
		string(to), runID, string(from))
	if err != nil {
		return 0, fmt.Errorf("update run task status: %w", err)
	}
	return res.RowsAffected()
}

// RunTasksByRun lists a run's tasks.
func (s *Store) RunTasksByRun(ctx context.Context, runID string) ([]*model.RunTask, error) {
	rows, err := s.query(ctx,
		"SELECT "+runTaskColumns+" FROM run_task WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.RunTask
	for rows.Next() {
		rt, err := scanRunTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

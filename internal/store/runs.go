package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/runwatch/internal/model"
)

const runColumns = `id, pipeline_id, key, name, status, start_time, end_time,
  expected_start_time, expected_end_time, instance_set_id, created_on`

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		r                                      model.Run
		key, setID                             sql.NullString
		start, end, expectedStart, expectedEnd sql.NullString
		status, created                        string
	)
	if err := row.Scan(&r.ID, &r.PipelineID, &key, &r.Name, &status, &start, &end,
		&expectedStart, &expectedEnd, &setID, &created); err != nil {
		return nil, handleNotFound(err)
	}
	r.Key = fromNullString(key)
	r.InstanceSetID = fromNullString(setID)
	r.Status = model.RunStatus(status)

	var err error
	if r.StartTime, err = fromNullTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = fromNullTime(end); err != nil {
		return nil, err
	}
	if r.ExpectedStartTime, err = fromNullTime(expectedStart); err != nil {
		return nil, err
	}
	if r.ExpectedEndTime, err = fromNullTime(expectedEnd); err != nil {
		return nil, err
	}
	if r.CreatedOn, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) listRuns(ctx context.Context, query string, args ...any) ([]*model.Run, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.queryRow(ctx, "SELECT "+runColumns+" FROM run WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}
	return r, nil
}

// FindRun returns the run an event for pipelineID/runKey should attach to:
// the run carrying runKey, else any PENDING run. MISSING runs never match.
// An empty runKey matches pending runs only.
func (s *Store) FindRun(ctx context.Context, pipelineID, runKey string) (*model.Run, error) {
	var key any
	if runKey != "" {
		key = runKey
	}
	r, err := scanRun(s.queryRow(ctx, `
SELECT `+runColumns+` FROM run
WHERE pipeline_id = ? AND status <> ? AND (key = ? OR status = ?)
ORDER BY CASE WHEN key = ? THEN 0 WHEN key IS NULL THEN 2 ELSE 1 END, created_on
LIMIT 1`,
		pipelineID, string(model.StatusMissing), key, string(model.StatusPending), key))
	if err != nil {
		return nil, fmt.Errorf("find run for pipeline %q: %w", pipelineID, err)
	}
	return r, nil
}

// CreateRun inserts r, assigning an id and creation time when unset.
func (s *Store) CreateRun(ctx context.Context, r *model.Run) error {
	s.ensureID(&r.ID)
	if r.CreatedOn.IsZero() {
		r.CreatedOn = s.stamp()
	}
	_, err := s.exec(ctx, `
INSERT INTO run(`+runColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PipelineID, nullString(r.Key), r.Name, string(r.Status),
		nullTime(r.StartTime), nullTime(r.EndTime),
		nullTime(r.ExpectedStartTime), nullTime(r.ExpectedEndTime),
		nullString(r.InstanceSetID), formatTime(r.CreatedOn))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun persists every mutable column of r.
func (s *Store) UpdateRun(ctx context.Context, r *model.Run) error {
	_, err := s.exec(ctx, `
UPDATE run SET key = ?, name = ?, status = ?, start_time = ?, end_time = ?,
  expected_start_time = ?, expected_end_time = ?, instance_set_id = ?
WHERE id = ?`,
		nullString(r.Key), r.Name, string(r.Status),
		nullTime(r.StartTime), nullTime(r.EndTime),
		nullTime(r.ExpectedStartTime), nullTime(r.ExpectedEndTime),
		nullString(r.InstanceSetID), r.ID)
	if err != nil {
		return fmt.Errorf("update run %q: %w", r.ID, err)
	}
	return nil
}

// RunsByPipeline lists a pipeline's runs oldest first.
func (s *Store) RunsByPipeline(ctx context.Context, pipelineID string) ([]*model.Run, error) {
	runs, err := s.listRuns(ctx,
		"SELECT "+runColumns+" FROM run WHERE pipeline_id = ? ORDER BY created_on, id", pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list runs for pipeline %q: %w", pipelineID, err)
	}
	return runs, nil
}

// RunExpectingStart returns the pipeline's run whose expected start is at.
func (s *Store) RunExpectingStart(ctx context.Context, pipelineID string, at time.Time) (*model.Run, error) {
	r, err := scanRun(s.queryRow(ctx, `
SELECT `+runColumns+` FROM run
WHERE pipeline_id = ? AND expected_start_time = ?
ORDER BY created_on DESC LIMIT 1`, pipelineID, formatTime(at)))
	if err != nil {
		return nil, fmt.Errorf("find run expecting %s: %w", formatTime(at), err)
	}
	return r, nil
}

// RunStartedSince reports whether any run of the pipeline started at or
// after since.
func (s *Store) RunStartedSince(ctx context.Context, pipelineID string, since time.Time) (bool, error) {
	var n int
	err := s.queryRow(ctx,
		"SELECT COUNT(*) FROM run WHERE pipeline_id = ? AND start_time >= ?",
		pipelineID, formatTime(since)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count runs started since: %w", err)
	}
	return n > 0, nil
}

// LatestRunningRun returns the most recently started RUNNING run of the
// pipeline that began at or before at.
func (s *Store) LatestRunningRun(ctx context.Context, pipelineID string, at time.Time) (*model.Run, error) {
	r, err := scanRun(s.queryRow(ctx, `
SELECT `+runColumns+` FROM run
WHERE pipeline_id = ? AND status = ? AND start_time <= ?
ORDER BY start_time DESC LIMIT 1`,
		pipelineID, string(model.StatusRunning), formatTime(at)))
	if err != nil {
		return nil, fmt.Errorf("find running run: %w", err)
	}
	return r, nil
}

// FinishedRunCounts counts, per pipeline id, the runs belonging to
// instanceID whose status is not in exclude. When endBefore is set only runs
// that ended strictly before it are counted. Pipelines without any matching
// run are absent from the result.
func (s *Store) FinishedRunCounts(
	ctx context.Context,
	instanceID string,
	exclude []model.RunStatus,
	pipelineIDs []string,
	endBefore *time.Time,
) (map[string]int, error) {
	out := map[string]int{}
	if len(pipelineIDs) == 0 {
		return out, nil
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`
SELECT r.pipeline_id, COUNT(DISTINCT r.id) FROM run r
JOIN instance_set_member m ON m.instance_set_id = r.instance_set_id
WHERE m.instance_id = ? AND r.pipeline_id IN (` + placeholders(len(pipelineIDs)) + `)`)
	args = append(args, instanceID)
	args = append(args, stringArgs(pipelineIDs)...)
	if len(exclude) > 0 {
		b.WriteString(" AND r.status NOT IN (" + placeholders(len(exclude)) + ")")
		for _, st := range exclude {
			args = append(args, string(st))
		}
	}
	if endBefore != nil {
		b.WriteString(" AND r.end_time < ?")
		args = append(args, formatTime(*endBefore))
	}
	b.WriteString(" GROUP BY r.pipeline_id")

	rows, err := s.query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("count finished runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

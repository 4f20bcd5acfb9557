package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattjoyce/runwatch/internal/model"
)

// CreateRunAlert inserts a.
func (s *Store) CreateRunAlert(ctx context.Context, a *model.RunAlert) error {
	s.ensureID(&a.ID)
	if a.CreatedOn.IsZero() {
		a.CreatedOn = s.stamp()
	}
	_, err := s.exec(ctx, `
INSERT INTO run_alert(id, run_id, type, level, description, expected_start_time, expected_end_time, created_on)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, string(a.Type), string(a.Level), a.Description,
		nullTime(a.ExpectedStartTime), nullTime(a.ExpectedEndTime), formatTime(a.CreatedOn))
	if err != nil {
		return fmt.Errorf("insert run alert: %w", err)
	}
	return nil
}

// RunAlerts lists a run's alerts oldest first.
func (s *Store) RunAlerts(ctx context.Context, runID string) ([]*model.RunAlert, error) {
	rows, err := s.query(ctx, `
SELECT id, run_id, type, level, description, expected_start_time, expected_end_time, created_on
FROM run_alert WHERE run_id = ? ORDER BY created_on, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run alerts: %w", err)
	}
	defer rows.Close()

	var out []*model.RunAlert
	for rows.Next() {
		var (
			a                          model.RunAlert
			typ, level, created        string
			expectedStart, expectedEnd sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RunID, &typ, &level, &a.Description,
			&expectedStart, &expectedEnd, &created); err != nil {
			return nil, err
		}
		a.Type = model.RunAlertType(typ)
		a.Level = model.AlertLevel(level)
		if a.ExpectedStartTime, err = fromNullTime(expectedStart); err != nil {
			return nil, err
		}
		if a.ExpectedEndTime, err = fromNullTime(expectedEnd); err != nil {
			return nil, err
		}
		if a.CreatedOn, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CreateInstanceAlert inserts a together with its component attribution.
func (s *Store) CreateInstanceAlert(ctx context.Context, a *model.InstanceAlert) error {
	s.ensureID(&a.ID)
	if a.CreatedOn.IsZero() {
		a.CreatedOn = s.stamp()
	}
	_, err := s.exec(ctx, `
INSERT INTO instance_alert(id, instance_id, type, level, description, created_on)
VALUES(?, ?, ?, ?, ?, ?)`,
		a.ID, a.InstanceID, string(a.Type), string(a.Level), a.Description, formatTime(a.CreatedOn))
	if err != nil {
		return fmt.Errorf("insert instance alert: %w", err)
	}
	return s.AddInstanceAlertComponents(ctx, a.ID, a.ComponentIDs)
}

// AddInstanceAlertComponents attributes more components to an alert.
func (s *Store) AddInstanceAlertComponents(ctx context.Context, alertID string, componentIDs []string) error {
	for _, id := range componentIDs {
		if _, err := s.exec(ctx, `
INSERT INTO instance_alert_component(instance_alert_id, component_id) VALUES(?, ?)
ON CONFLICT (instance_alert_id, component_id) DO NOTHING`, alertID, id); err != nil {
			return fmt.Errorf("insert instance alert component: %w", err)
		}
	}
	return nil
}

// UpdateInstanceAlertDescription rewrites the description of an alert.
func (s *Store) UpdateInstanceAlertDescription(ctx context.Context, alertID, description string) error {
	if _, err := s.exec(ctx, "UPDATE instance_alert SET description = ? WHERE id = ?", description, alertID); err != nil {
		return fmt.Errorf("update instance alert %q: %w", alertID, err)
	}
	return nil
}

// InstanceAlertExists reports whether an alert of typ already exists for the
// instance and is attributed to componentID.
func (s *Store) InstanceAlertExists(ctx context.Context, instanceID string, typ model.InstanceAlertType, componentID string) (bool, error) {
	var n int
	err := s.queryRow(ctx, `
SELECT COUNT(*) FROM instance_alert a
JOIN instance_alert_component c ON c.instance_alert_id = a.id
WHERE a.instance_id = ? AND a.type = ? AND c.component_id = ?`,
		instanceID, string(typ), componentID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count instance alerts: %w", err)
	}
	return n > 0, nil
}

// LatestInstanceAlert returns the newest alert of typ for the instance.
func (s *Store) LatestInstanceAlert(ctx context.Context, instanceID string, typ model.InstanceAlertType) (*model.InstanceAlert, error) {
	alerts, err := s.listInstanceAlerts(ctx, `
SELECT id, instance_id, type, level, description, created_on FROM instance_alert
WHERE instance_id = ? AND type = ? ORDER BY created_on DESC, id LIMIT 1`, instanceID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("find instance alert: %w", err)
	}
	if len(alerts) == 0 {
		return nil, fmt.Errorf("find instance alert: %w", ErrNotFound)
	}
	return alerts[0], nil
}

// InstanceAlerts lists an instance's alerts oldest first.
func (s *Store) InstanceAlerts(ctx context.Context, instanceID string) ([]*model.InstanceAlert, error) {
	alerts, err := s.listInstanceAlerts(ctx, `
SELECT id, instance_id, type, level, description, created_on FROM instance_alert
WHERE instance_id = ? ORDER BY created_on, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list instance alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) listInstanceAlerts(ctx context.Context, query string, args ...any) ([]*model.InstanceAlert, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []*model.InstanceAlert
	for rows.Next() {
		var (
			a                   model.InstanceAlert
			typ, level, created string
		)
		if err := rows.Scan(&a.ID, &a.InstanceID, &typ, &level, &a.Description, &created); err != nil {
			rows.Close()
			return nil, err
		}
		a.Type = model.InstanceAlertType(typ)
		a.Level = model.AlertLevel(level)
		if a.CreatedOn, err = parseTime(created); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Components are loaded after the cursor is closed; a transaction cannot
	// run a second query while rows are open on some drivers.
	rows.Close()

	for _, a := range out {
		crows, err := s.query(ctx,
			"SELECT component_id FROM instance_alert_component WHERE instance_alert_id = ? ORDER BY component_id", a.ID)
		if err != nil {
			return nil, err
		}
		if a.ComponentIDs, err = collectStrings(crows); err != nil {
			return nil, err
		}
	}
	return out, nil
}

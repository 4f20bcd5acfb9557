package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EventEntity is the durable record of one identified event.
type EventEntity struct {
	ID                string
	Version           int
	Type              string
	ProjectID         string
	ComponentID       *string
	RunID             *string
	TaskID            *string
	RunTaskID         *string
	InstanceSetID     *string
	EventTimestamp    time.Time
	ReceivedTimestamp time.Time
	Payload           []byte
}

// SaveEventEntity inserts e unless a row with the same id exists, so a
// redelivered event is recorded once. It reports whether a row was written.
func (s *Store) SaveEventEntity(ctx context.Context, e *EventEntity) (bool, error) {
	res, err := s.exec(ctx, `
INSERT INTO event_entity(id, version, type, project_id, component_id, run_id, task_id,
  run_task_id, instance_set_id, event_timestamp, received_timestamp, payload)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Version, e.Type, e.ProjectID, nullString(e.ComponentID), nullString(e.RunID),
		nullString(e.TaskID), nullString(e.RunTaskID), nullString(e.InstanceSetID),
		formatTime(e.EventTimestamp), formatTime(e.ReceivedTimestamp), e.Payload)
	if err != nil {
		return false, fmt.Errorf("insert event entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEventEntity loads an event entity by id.
func (s *Store) GetEventEntity(ctx context.Context, id string) (*EventEntity, error) {
	var (
		e                                     EventEntity
		componentID, runID, taskID, runTaskID sql.NullString
		setID                                 sql.NullString
		eventTS, receivedTS                   string
	)
	err := s.queryRow(ctx, `
SELECT id, version, type, project_id, component_id, run_id, task_id, run_task_id,
  instance_set_id, event_timestamp, received_timestamp, payload
FROM event_entity WHERE id = ?`, id).Scan(&e.ID, &e.Version, &e.Type, &e.ProjectID,
		&componentID, &runID, &taskID, &runTaskID, &setID, &eventTS, &receivedTS, &e.Payload)
	if err != nil {
		return nil, fmt.Errorf("get event entity %q: %w", id, handleNotFound(err))
	}
	e.ComponentID = fromNullString(componentID)
	e.RunID = fromNullString(runID)
	e.TaskID = fromNullString(taskID)
	e.RunTaskID = fromNullString(runTaskID)
	e.InstanceSetID = fromNullString(setID)
	if e.EventTimestamp, err = parseTime(eventTS); err != nil {
		return nil, err
	}
	if e.ReceivedTimestamp, err = parseTime(receivedTS); err != nil {
		return nil, err
	}
	return &e, nil
}

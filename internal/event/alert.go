package event

import (
	"time"

	"github.com/mattjoyce/runwatch/internal/model"
)

// RunAlert is the message form of a run alert.
type RunAlert struct {
	AlertID           string             `msgpack:"alert_id"`
	ProjectID         string             `msgpack:"project_id"`
	Type              model.RunAlertType `msgpack:"type"`
	Level             model.AlertLevel   `msgpack:"level"`
	Description       string             `msgpack:"description"`
	RunID             string             `msgpack:"run_id"`
	RunKey            string             `msgpack:"run_key,omitempty"`
	PipelineID        string             `msgpack:"pipeline_id"`
	PipelineKey       string             `msgpack:"pipeline_key"`
	ExpectedStartTime *time.Time         `msgpack:"expected_start_time,omitempty"`
	ExpectedEndTime   *time.Time         `msgpack:"expected_end_time,omitempty"`
	CreatedTimestamp  time.Time          `msgpack:"created_timestamp"`
}

// InstanceAlert is the message form of an instance alert.
type InstanceAlert struct {
	AlertID          string                  `msgpack:"alert_id"`
	ProjectID        string                  `msgpack:"project_id"`
	Type             model.InstanceAlertType `msgpack:"type"`
	Level            model.AlertLevel        `msgpack:"level"`
	Description      string                  `msgpack:"description"`
	InstanceID       string                  `msgpack:"instance_id"`
	JourneyID        string                  `msgpack:"journey_id"`
	ComponentIDs     []string                `msgpack:"component_ids"`
	CreatedTimestamp time.Time               `msgpack:"created_timestamp"`
}

// NewRunAlert builds the message for a persisted run alert.
func NewRunAlert(projectID string, a *model.RunAlert, run *model.Run, pipeline *model.Component) *RunAlert {
	return &RunAlert{
		AlertID:           a.ID,
		ProjectID:         projectID,
		Type:              a.Type,
		Level:             a.Level,
		Description:       a.Description,
		RunID:             run.ID,
		RunKey:            run.KeyOrEmpty(),
		PipelineID:        pipeline.ID,
		PipelineKey:       pipeline.Key,
		ExpectedStartTime: a.ExpectedStartTime,
		ExpectedEndTime:   a.ExpectedEndTime,
		CreatedTimestamp:  a.CreatedOn,
	}
}

// NewInstanceAlert builds the message for a persisted instance alert.
func NewInstanceAlert(projectID, journeyID string, a *model.InstanceAlert) *InstanceAlert {
	return &InstanceAlert{
		AlertID:          a.ID,
		ProjectID:        projectID,
		Type:             a.Type,
		Level:            a.Level,
		Description:      a.Description,
		InstanceID:       a.InstanceID,
		JourneyID:        journeyID,
		ComponentIDs:     append([]string(nil), a.ComponentIDs...),
		CreatedTimestamp: a.CreatedOn,
	}
}

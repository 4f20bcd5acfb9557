package runmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

var runAlertLevels = map[model.RunAlertType]model.AlertLevel{
	model.RunAlertLateStart:              model.LevelWarning,
	model.RunAlertLateEnd:                model.LevelWarning,
	model.RunAlertMissingRun:             model.LevelError,
	model.RunAlertCompletedWithWarnings:  model.LevelWarning,
	model.RunAlertFailed:                 model.LevelError,
	model.RunAlertUnexpectedStatusChange: model.LevelWarning,
}

var instanceAlertLevels = map[model.InstanceAlertType]model.AlertLevel{
	model.InstanceAlertTestsFailed:      model.LevelError,
	model.InstanceAlertTestsHadWarnings: model.LevelWarning,
	model.InstanceAlertOutOfSequence:    model.LevelError,
	model.InstanceAlertIncomplete:       model.LevelError,
}

// raiseRunAlert persists a run alert and queues it for emission.
func raiseRunAlert(ctx context.Context, st *store.Store, c *Context, typ model.RunAlertType) error {
	run := c.Run
	a := &model.RunAlert{
		RunID:             run.ID,
		Type:              typ,
		Level:             runAlertLevels[typ],
		Description:       describeRunAlert(typ, c.Pipeline, run),
		ExpectedStartTime: run.ExpectedStartTime,
		ExpectedEndTime:   run.ExpectedEndTime,
	}
	if err := st.CreateRunAlert(ctx, a); err != nil {
		return err
	}
	c.RunAlerts = append(c.RunAlerts, a)
	return nil
}

// raiseInstanceAlert persists an instance alert and queues it for emission.
func raiseInstanceAlert(ctx context.Context, st *store.Store, c *Context, instanceID string, typ model.InstanceAlertType, description string, componentIDs []string) error {
	a := &model.InstanceAlert{
		InstanceID:   instanceID,
		Type:         typ,
		Level:        instanceAlertLevels[typ],
		Description:  description,
		ComponentIDs: componentIDs,
	}
	if err := st.CreateInstanceAlert(ctx, a); err != nil {
		return err
	}
	c.InstanceAlerts = append(c.InstanceAlerts, a)
	return nil
}

func describeRunAlert(typ model.RunAlertType, pipeline *model.Component, run *model.Run) string {
	name := pipeline.DisplayName()
	ref := run.KeyOrEmpty()
	if ref == "" {
		ref = run.ID
	}
	switch typ {
	case model.RunAlertLateStart:
		return fmt.Sprintf("Run of %s did not start by its expected start time", name)
	case model.RunAlertLateEnd:
		return fmt.Sprintf("Run %s of %s did not end by its expected end time", ref, name)
	case model.RunAlertMissingRun:
		return fmt.Sprintf("Expected run of %s never started", name)
	case model.RunAlertCompletedWithWarnings:
		return fmt.Sprintf("Run %s of %s completed with warnings", ref, name)
	case model.RunAlertFailed:
		return fmt.Sprintf("Run %s of %s failed", ref, name)
	case model.RunAlertUnexpectedStatusChange:
		return fmt.Sprintf("Run %s of %s changed status to %s after it had ended", ref, name, run.Status)
	}
	return string(typ)
}

func describeComponents(comps []*model.Component) string {
	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.DisplayName())
	}
	return strings.Join(names, ", ")
}

package runmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// TestOutcomeHandler records test results and raises instance alerts when
// tests fail or warn.
type TestOutcomeHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *TestOutcomeHandler) Name() string { return "test_outcome" }

func (h *TestOutcomeHandler) Handle(ctx context.Context, c *Context) error {
	if c.Event.Kind != event.KindTestOutcomes {
		return nil
	}
	worst := model.TestPassed
	for i := range c.Event.TestOutcomes {
		item := &c.Event.TestOutcomes[i]
		o, err := h.outcome(c, item)
		if err != nil {
			return err
		}
		if err := h.st.CreateTestOutcome(ctx, o); err != nil {
			return err
		}
		if item.Status.WorseThan(worst) {
			worst = item.Status
		}
	}
	return h.createInstanceAlerts(ctx, c, worst)
}

func (h *TestOutcomeHandler) outcome(c *Context, item *event.TestOutcomeItem) (*model.TestOutcome, error) {
	o := &model.TestOutcome{
		ComponentID:  c.Component.ID,
		Name:         item.Name,
		Key:          item.Key,
		Status:       item.Status,
		Description:  item.Description,
		Type:         item.Type,
		Result:       item.Result,
		StartTime:    item.StartTime,
		EndTime:      item.EndTime,
		MetricValue:  item.MetricValue,
		MinThreshold: item.MinThreshold,
		MaxThreshold: item.MaxThreshold,
		Dimensions:   item.Dimensions,
		ExternalURL:  item.ExternalURL,
	}
	if c.Run != nil {
		o.RunID = &c.Run.ID
	}
	if c.Task != nil {
		o.TaskID = &c.Task.ID
	}
	if c.RunTask != nil {
		o.RunTaskID = &c.RunTask.ID
	}
	if c.InstanceSet != nil {
		o.InstanceSetID = &c.InstanceSet.ID
	}
	if item.Integrations != nil && item.Integrations.Testgen != nil {
		raw, err := json.Marshal(item.Integrations)
		if err != nil {
			return nil, fmt.Errorf("encode integrations for test %q: %w", item.Name, err)
		}
		o.Integrations = raw
	}
	return o, nil
}

// createInstanceAlerts raises one alert per instance for the worst status
// reported. An alert of the same type already attributed to this component
// in the instance suppresses a new one; the opposite type does not.
func (h *TestOutcomeHandler) createInstanceAlerts(ctx context.Context, c *Context, worst model.TestStatus) error {
	var typ model.InstanceAlertType
	switch worst {
	case model.TestFailed:
		typ = model.InstanceAlertTestsFailed
	case model.TestWarning:
		typ = model.InstanceAlertTestsHadWarnings
	default:
		return nil
	}

	for _, in := range c.Instances {
		exists, err := h.st.InstanceAlertExists(ctx, in.ID, typ, c.Component.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		desc := fmt.Sprintf("Tests for %s reported %s", c.Component.DisplayName(), worst)
		if err := raiseInstanceAlert(ctx, h.st, c, in.ID, typ, desc, []string{c.Component.ID}); err != nil {
			return err
		}
	}
	return nil
}

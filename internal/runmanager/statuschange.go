package runmanager

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// statusAlerts maps a run's new status to the alert it raises.
var statusAlerts = map[model.RunStatus]model.RunAlertType{
	model.StatusPending:               model.RunAlertLateStart,
	model.StatusMissing:               model.RunAlertMissingRun,
	model.StatusCompletedWithWarnings: model.RunAlertCompletedWithWarnings,
	model.StatusFailed:                model.RunAlertFailed,
}

// StatusChangeHandler raises run alerts for status events. Task-level events
// only count when they close the task.
type StatusChangeHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *StatusChangeHandler) Name() string { return "status_change" }

func (h *StatusChangeHandler) Handle(ctx context.Context, c *Context) error {
	e := c.Event
	if e.Kind != event.KindRunStatus || c.Pipeline == nil || c.Run == nil {
		return nil
	}
	runLevel := e.IsRunLevel()
	if !runLevel && !e.Status.IsEnd() {
		return nil
	}

	if !c.CreatedRun && c.PrevRunStatus.IsEnd() {
		h.logger.Info("status update after run ended",
			"run_id", c.Run.ID, "previous", c.PrevRunStatus, "status", e.Status)
		return raiseRunAlert(ctx, h.st, c, model.RunAlertUnexpectedStatusChange)
	}
	if !runLevel {
		return nil
	}
	if typ, ok := statusAlerts[c.Run.Status]; ok {
		return raiseRunAlert(ctx, h.st, c, typ)
	}
	return nil
}

package runmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// RunHandler owns the run lifecycle of batch pipelines.
type RunHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *RunHandler) Name() string { return "run" }

func (h *RunHandler) Handle(ctx context.Context, c *Context) error {
	if c.Pipeline == nil {
		return nil
	}
	switch c.Event.Kind {
	case event.KindRunStatus:
		return h.handleRunStatus(ctx, c)
	case event.KindMessageLog, event.KindMetricLog, event.KindTestOutcomes:
		return h.handleActivity(ctx, c)
	}
	return nil
}

func (h *RunHandler) handleRunStatus(ctx context.Context, c *Context) error {
	e := c.Event
	run, err := h.resolve(ctx, c, e.Status.IsStarted())
	if err != nil {
		return err
	}

	if e.IsRunLevel() {
		if e.Status.IsStarted() {
			updateState(run, e.Status, e.EventTimestamp)
		} else {
			// PENDING and MISSING describe a run that has not actually run.
			run.Status = e.Status
			run.StartTime = nil
			run.EndTime = nil
		}
	}
	return h.save(ctx, c)
}

// handleActivity covers events without a status. Activity proves the run
// began, so a pending run is started.
func (h *RunHandler) handleActivity(ctx context.Context, c *Context) error {
	if _, err := h.resolve(ctx, c, true); err != nil {
		return err
	}
	return h.save(ctx, c)
}

// resolve finds or creates the run for the event and applies the identity
// level updates shared by every event kind.
func (h *RunHandler) resolve(ctx context.Context, c *Context, started bool) (*model.Run, error) {
	e := c.Event
	ts := e.EventTimestamp.UTC()

	run, err := h.find(ctx, c.Pipeline.ID, e)
	switch {
	case errors.Is(err, store.ErrNotFound):
		run = &model.Run{
			PipelineID: c.Pipeline.ID,
			Name:       e.RunName,
			Status:     model.StatusRunning,
			StartTime:  &ts,
		}
		if e.RunKey != "" {
			key := e.RunKey
			run.Key = &key
		}
		c.CreatedRun = true
	case err != nil:
		return nil, err
	default:
		c.PrevRunStatus = run.Status
		if run.Status == model.StatusPending && started {
			run.Status = model.StatusRunning
			run.StartTime = &ts
			if e.RunKey != "" {
				key := e.RunKey
				run.Key = &key
			}
			c.StartedRun = true
		}
	}

	if run.ExpectedStartTime == nil {
		run.ExpectedStartTime = e.ExpectedStartTime()
	}
	if run.ExpectedEndTime == nil {
		run.ExpectedEndTime = e.ExpectedEndTime()
	}
	if e.RunName != "" && e.RunName != run.Name {
		run.Name = e.RunName
	}

	c.Run = run
	return run, nil
}

// find prefers an unkeyed event's PENDING run opened for the same expected
// start, falling back to the usual key and oldest-pending match.
func (h *RunHandler) find(ctx context.Context, pipelineID string, e *event.Event) (*model.Run, error) {
	if expected := e.ExpectedStartTime(); e.RunKey == "" && expected != nil {
		run, err := h.st.RunExpectingStart(ctx, pipelineID, *expected)
		switch {
		case err == nil && run.Status == model.StatusPending:
			return run, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return h.st.FindRun(ctx, pipelineID, e.RunKey)
}

func (h *RunHandler) save(ctx context.Context, c *Context) error {
	if c.Run == nil {
		return fmt.Errorf("pipeline %q: %w", c.Pipeline.Key, ErrRunNotResolved)
	}
	if c.CreatedRun {
		if err := h.st.CreateRun(ctx, c.Run); err != nil {
			return err
		}
		h.logger.Debug("run created", "run_id", c.Run.ID, "run_key", c.Run.KeyOrEmpty(), "status", c.Run.Status)
	} else if err := h.st.UpdateRun(ctx, c.Run); err != nil {
		return err
	}
	c.Event.RunID = c.Run.ID
	return nil
}

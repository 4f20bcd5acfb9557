package runmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// OutOfSequenceHandler detects a new run starting before its upstream batch
// pipelines have finished in the same instance.
type OutOfSequenceHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *OutOfSequenceHandler) Name() string { return "out_of_sequence" }

func (h *OutOfSequenceHandler) Handle(ctx context.Context, c *Context) error {
	if !c.CreatedRun || c.Pipeline == nil || c.Run == nil || !c.Run.Status.IsStarted() {
		return nil
	}
	start := c.Event.EventTimestamp.UTC()
	if c.Run.StartTime != nil {
		start = *c.Run.StartTime
	}

	for _, in := range c.Instances {
		upstream, err := h.upstreamPipelines(ctx, in.JourneyID, c.Pipeline.ID)
		if err != nil {
			return err
		}
		if len(upstream) == 0 {
			continue
		}
		ids := make([]string, 0, len(upstream))
		for _, p := range upstream {
			ids = append(ids, p.ID)
		}
		counts, err := h.st.FinishedRunCounts(ctx, in.ID, model.UnfinishedStatuses, ids, &start)
		if err != nil {
			return err
		}

		var unfinished []*model.Component
		for _, p := range upstream {
			if counts[p.ID] == 0 {
				unfinished = append(unfinished, p)
			}
		}
		if len(unfinished) == 0 {
			continue
		}
		if err := h.raise(ctx, c, in.ID, unfinished); err != nil {
			return err
		}
	}
	return nil
}

func (h *OutOfSequenceHandler) upstreamPipelines(ctx context.Context, journeyID, pipelineID string) ([]*model.Component, error) {
	ids, err := h.st.UpstreamComponents(ctx, journeyID, pipelineID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	comps, err := h.st.GetComponents(ctx, ids)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(comps, func(c *model.Component) bool { return !c.IsBatchPipeline() }), nil
}

// raise creates the instance's out-of-sequence alert, or extends the
// existing one with components it does not name yet. An instance carries at
// most one such alert.
func (h *OutOfSequenceHandler) raise(ctx context.Context, c *Context, instanceID string, unfinished []*model.Component) error {
	existing, err := h.st.LatestInstanceAlert(ctx, instanceID, model.InstanceAlertOutOfSequence)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if existing == nil {
		ids := make([]string, 0, len(unfinished))
		for _, p := range unfinished {
			ids = append(ids, p.ID)
		}
		desc := h.describe(c, unfinished)
		return raiseInstanceAlert(ctx, h.st, c, instanceID, model.InstanceAlertOutOfSequence, desc, ids)
	}

	var added []string
	for _, p := range unfinished {
		if !slices.Contains(existing.ComponentIDs, p.ID) {
			added = append(added, p.ID)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := h.st.AddInstanceAlertComponents(ctx, existing.ID, added); err != nil {
		return err
	}
	existing.ComponentIDs = append(existing.ComponentIDs, added...)
	slices.Sort(existing.ComponentIDs)

	all, err := h.st.GetComponents(ctx, existing.ComponentIDs)
	if err != nil {
		return err
	}
	existing.Description = h.describe(c, all)
	if err := h.st.UpdateInstanceAlertDescription(ctx, existing.ID, existing.Description); err != nil {
		return err
	}
	h.logger.Debug("out-of-sequence alert extended", "alert_id", existing.ID, "added", added)
	c.InstanceAlerts = append(c.InstanceAlerts, existing)
	return nil
}

func (h *OutOfSequenceHandler) describe(c *Context, upstream []*model.Component) string {
	return fmt.Sprintf("%s started before upstream %s finished",
		c.Pipeline.DisplayName(), describeComponents(upstream))
}

package runmanager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// IncompleteHandler flags instances that closed while some batch pipelines
// of their journey never ran in them.
type IncompleteHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *IncompleteHandler) Name() string { return "incomplete" }

func (h *IncompleteHandler) Handle(ctx context.Context, c *Context) error {
	for _, in := range c.EndedInstances {
		pipelines, err := h.st.JourneyPipelines(ctx, in.JourneyID)
		if err != nil {
			return err
		}
		counts, err := h.st.FinishedRunCounts(ctx, in.ID, nil, pipelines, nil)
		if err != nil {
			return err
		}
		var missing []string
		for _, id := range pipelines {
			if counts[id] == 0 {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			continue
		}

		comps, err := h.st.GetComponents(ctx, missing)
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("Instance ended without runs of %s", describeComponents(comps))
		if err := raiseInstanceAlert(ctx, h.st, c, in.ID, model.InstanceAlertIncomplete, desc, missing); err != nil {
			return err
		}
	}
	return nil
}

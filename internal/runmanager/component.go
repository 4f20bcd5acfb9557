package runmanager

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// ComponentIdentifier resolves the component an event concerns, creating it
// on first sight.
type ComponentIdentifier struct {
	st     *store.Store
	logger *slog.Logger
}

// Identify sets c.Component. It reports false when the event references no
// resolvable component, which callers treat as a dead letter.
func (h *ComponentIdentifier) Identify(ctx context.Context, c *Context) (bool, error) {
	e := c.Event
	typ, key, ok := e.ComponentRef()
	if !ok {
		if e.ComponentID == "" || e.PipelineKey+e.DatasetKey+e.ServerKey+e.StreamKey != "" {
			return false, nil
		}
		comp, err := h.st.GetComponent(ctx, e.ComponentID)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		h.bind(c, comp)
		return true, nil
	}

	comp, err := h.st.GetComponentByKey(ctx, e.ProjectID, typ, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		comp = &model.Component{
			ProjectID: e.ProjectID,
			Type:      typ,
			Key:       key,
			Name:      e.ComponentName,
			Tool:      e.ComponentTool,
		}
		if err := h.st.CreateComponent(ctx, comp); err != nil {
			return false, err
		}
		h.logger.Debug("component created", "component_id", comp.ID, "type", typ, "key", key)
	case err != nil:
		return false, err
	default:
		if changed := refreshComponent(comp, e.ComponentName, e.ComponentTool); changed {
			if err := h.st.UpdateComponent(ctx, comp); err != nil {
				return false, err
			}
		}
	}
	h.bind(c, comp)
	return true, nil
}

func (h *ComponentIdentifier) bind(c *Context, comp *model.Component) {
	c.Component = comp
	if comp.IsBatchPipeline() {
		c.Pipeline = comp
	}
	c.Event.ComponentID = comp.ID
	if c.Event.ProjectID == "" {
		c.Event.ProjectID = comp.ProjectID
	}
}

// refreshComponent applies non-empty differing descriptive fields.
func refreshComponent(comp *model.Component, name, tool string) bool {
	changed := false
	if name != "" && name != comp.Name {
		comp.Name = name
		changed = true
	}
	if tool != "" && tool != comp.Tool {
		comp.Tool = tool
		changed = true
	}
	return changed
}


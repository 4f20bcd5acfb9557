package runmanager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// DatasetHandler records reads and writes reported against datasets.
type DatasetHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *DatasetHandler) Name() string { return "dataset" }

func (h *DatasetHandler) Handle(ctx context.Context, c *Context) error {
	e := c.Event
	if e.Kind != event.KindDatasetOperation || c.Component.Type != model.ComponentDataset {
		return nil
	}
	switch e.Operation {
	case model.DatasetRead, model.DatasetWrite:
	default:
		return fmt.Errorf("dataset operation %q: %w", e.Operation, ErrInvalidEvent)
	}

	op := &model.DatasetOperation{
		DatasetID:     c.Component.ID,
		Operation:     e.Operation,
		Path:          e.Path,
		OperationTime: e.EventTimestamp.UTC(),
	}
	if c.InstanceSet != nil {
		op.InstanceSetID = &c.InstanceSet.ID
	}
	return h.st.CreateDatasetOperation(ctx, op)
}

package runmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

var (
	// ErrNoComponent means a scheduled event names no known batch pipeline.
	ErrNoComponent = errors.New("no batch pipeline for scheduled event")
	// ErrUnknownScheduleType is returned for schedule types this service does
	// not evaluate.
	ErrUnknownScheduleType = errors.New("unknown schedule type")
)

// ProcessScheduled handles one scheduler tick inside the caller's
// transaction. Start checks are turned into synthetic run status events and
// fed through the normal pipeline; end checks raise LATE_END directly.
func (m *Manager) ProcessScheduled(ctx context.Context, db store.DB, se *event.ScheduledEvent) (*Outcome, error) {
	st := m.store.WithDB(db)
	logger := m.logger.With("schedule_id", se.ScheduleID, "schedule_type", se.ScheduleType)

	pipeline, err := m.schedulePipeline(ctx, st, se)
	if errors.Is(err, ErrNoComponent) {
		logger.Warn("scheduled event does not resolve to a batch pipeline; dead-lettering",
			"component_id", se.ComponentID)
		return &Outcome{DeadLetter: true}, nil
	}
	if err != nil {
		return nil, err
	}

	ts := se.ScheduleTimestamp.UTC()
	switch se.ScheduleType {
	case event.ScheduleBatchStartTime:
		if se.ScheduleMargin != nil {
			return m.checkMissing(ctx, st, se, pipeline, ts)
		}
		return m.checkLateStart(ctx, st, se, pipeline, ts)
	case event.ScheduleBatchEndTime:
		return m.checkLateEnd(ctx, st, pipeline, ts)
	default:
		return nil, fmt.Errorf("%q: %w", se.ScheduleType, ErrUnknownScheduleType)
	}
}

func (m *Manager) schedulePipeline(ctx context.Context, st *store.Store, se *event.ScheduledEvent) (*model.Component, error) {
	if se.ComponentID == "" {
		return nil, ErrNoComponent
	}
	comp, err := st.GetComponent(ctx, se.ComponentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoComponent
	}
	if err != nil {
		return nil, err
	}
	if !comp.IsBatchPipeline() {
		return nil, ErrNoComponent
	}
	return comp, nil
}

// checkLateStart opens a PENDING run for an expected start nobody reported.
func (m *Manager) checkLateStart(ctx context.Context, st *store.Store, se *event.ScheduledEvent, pipeline *model.Component, ts time.Time) (*Outcome, error) {
	started, err := st.RunStartedSince(ctx, pipeline.ID, ts)
	if err != nil {
		return nil, err
	}
	if started {
		return &Outcome{}, nil
	}
	_, err = st.RunExpectingStart(ctx, pipeline.ID, ts)
	if err == nil {
		return &Outcome{}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return m.process(ctx, st, m.synthetic(se, pipeline, model.StatusPending, ts, ts))
}

// checkMissing marks a run still pending at the end of its grace period as
// MISSING. The synthetic event carries the expected start so it resolves to
// that run even when another pending run is older.
func (m *Manager) checkMissing(ctx context.Context, st *store.Store, se *event.ScheduledEvent, pipeline *model.Component, ts time.Time) (*Outcome, error) {
	run, err := st.RunExpectingStart(ctx, pipeline.ID, ts)
	if errors.Is(err, store.ErrNotFound) {
		return &Outcome{}, nil
	}
	if err != nil {
		return nil, err
	}
	if run.Status != model.StatusPending {
		return &Outcome{}, nil
	}
	return m.process(ctx, st, m.synthetic(se, pipeline, model.StatusMissing, ts, se.ScheduleMargin.UTC()))
}

func (m *Manager) checkLateEnd(ctx context.Context, st *store.Store, pipeline *model.Component, ts time.Time) (*Outcome, error) {
	run, err := st.LatestRunningRun(ctx, pipeline.ID, ts)
	if errors.Is(err, store.ErrNotFound) {
		return &Outcome{}, nil
	}
	if err != nil {
		return nil, err
	}
	if run.ExpectedEndTime != nil && run.ExpectedEndTime.Equal(ts) {
		return &Outcome{}, nil
	}
	run.ExpectedEndTime = &ts
	if err := st.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	c := &Context{Component: pipeline, Pipeline: pipeline, Run: run}
	if err := raiseRunAlert(ctx, st, c, model.RunAlertLateEnd); err != nil {
		return nil, err
	}
	return m.outcome(ctx, st, c)
}

// synthetic builds the run status event a scheduler tick stands in for.
func (m *Manager) synthetic(se *event.ScheduledEvent, pipeline *model.Component, status model.RunStatus, expected, at time.Time) *event.Event {
	return &event.Event{
		Kind:           event.KindRunStatus,
		Version:        event.Version,
		ProjectID:      pipeline.ProjectID,
		Source:         event.SourceScheduler,
		PipelineKey:    pipeline.Key,
		ComponentID:    pipeline.ID,
		Status:         status,
		EventTimestamp: at,
		Metadata:       map[string]any{"expected_start_time": expected},
	}
}

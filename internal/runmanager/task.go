package runmanager

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// TaskHandler owns tasks and their per-run executions.
type TaskHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *TaskHandler) Name() string { return "task" }

func (h *TaskHandler) Handle(ctx context.Context, c *Context) error {
	if c.Pipeline == nil || c.Run == nil {
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

func (h *TaskHandler) handleRunStatus(ctx context.Context, c *Context) error {
	if err := h.createRequiredTasks(ctx, c); err != nil {
		return err
	}
	e := c.Event

	if !e.IsRunLevel() {
		if err := h.identifyTask(ctx, c); err != nil {
			return err
		}
		updateState(c.RunTask, e.Status, e.EventTimestamp)
		return h.st.UpdateRunTask(ctx, c.RunTask)
	}

	switch {
	case e.IsCloseRun() || e.Status == model.StatusMissing:
		// Anything still pending will never run now.
		_, err := h.st.SetRunTaskStatus(ctx, c.Run.ID, model.StatusPending, model.StatusMissing)
		return err
	case e.Status.IsUnfinished():
		_, err := h.st.SetRunTaskStatus(ctx, c.Run.ID, model.StatusMissing, model.StatusPending)
		return err
	}
	return nil
}

// handleActivity marks the task as running on first log or test activity.
func (h *TaskHandler) handleActivity(ctx context.Context, c *Context) error {
	if err := h.createRequiredTasks(ctx, c); err != nil {
		return err
	}
	if err := h.identifyTask(ctx, c); err != nil {
		return err
	}
	rt := c.RunTask
	if rt == nil {
		return nil
	}
	if rt.StartTime == nil {
		ts := c.Event.EventTimestamp.UTC()
		rt.StartTime = &ts
	}
	rt.Status = model.MaxStatus(rt.Status, model.StatusRunning)
	return h.st.UpdateRunTask(ctx, rt)
}

// createRequiredTasks seeds a new run with its pipeline's required tasks.
func (h *TaskHandler) createRequiredTasks(ctx context.Context, c *Context) error {
	if !c.CreatedRun || c.RequiredTasksCreated {
		return nil
	}
	tasks, err := h.st.RequiredTasks(ctx, c.Pipeline.ID)
	if err != nil {
		return err
	}
	rts := make([]*model.RunTask, 0, len(tasks))
	for _, t := range tasks {
		rts = append(rts, &model.RunTask{
			RunID:    c.Run.ID,
			TaskID:   t.ID,
			Status:   model.StatusPending,
			Required: true,
		})
	}
	if err := h.st.CreateRunTasks(ctx, rts); err != nil {
		return err
	}
	c.RequiredTasksCreated = true
	return nil
}

// identifyTask resolves the task and run task named by the event, creating
// both as needed.
func (h *TaskHandler) identifyTask(ctx context.Context, c *Context) error {
	e := c.Event
	if e.TaskKey == "" {
		return nil
	}

	task, err := h.st.GetTaskByKey(ctx, c.Pipeline.ID, e.TaskKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		task = &model.Task{PipelineID: c.Pipeline.ID, Key: e.TaskKey, Name: e.TaskName}
		if err := h.st.CreateTask(ctx, task); err != nil {
			return err
		}
	case err != nil:
		return err
	case e.TaskName != "" && e.TaskName != task.Name:
		task.Name = e.TaskName
		if err := h.st.UpdateTask(ctx, task); err != nil {
			return err
		}
	}

	rt, err := h.st.GetRunTask(ctx, c.Run.ID, task.ID)
	if errors.Is(err, store.ErrNotFound) {
		rt = &model.RunTask{RunID: c.Run.ID, TaskID: task.ID, Status: model.StatusPending}
		err = h.st.CreateRunTask(ctx, rt)
	}
	if err != nil {
		return err
	}

	c.Task = task
	c.RunTask = rt
	e.TaskID = task.ID
	e.RunTaskID = rt.ID
	return nil
}

package model

import "time"

// Task is a named step of a batch pipeline. Required tasks are pre-created
// as RunTasks whenever a new run of the pipeline appears.
type Task struct {
	ID         string
	PipelineID string
	Key        string
	Name       string
	Required   bool
}

// RunTask is one task's execution within a run.
type RunTask struct {
	ID        string
	RunID     string
	TaskID    string
	Status    RunStatus
	StartTime *time.Time
	EndTime   *time.Time
	Required  bool
}

func (rt *RunTask) GetStatus() RunStatus      { return rt.Status }
func (rt *RunTask) SetStatus(s RunStatus)     { rt.Status = s }
func (rt *RunTask) GetStartTime() *time.Time  { return rt.StartTime }
func (rt *RunTask) SetStartTime(t *time.Time) { rt.StartTime = t }
func (rt *RunTask) GetEndTime() *time.Time    { return rt.EndTime }
func (rt *RunTask) SetEndTime(t *time.Time)   { rt.EndTime = t }

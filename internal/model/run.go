package model

import "time"

// RunStatus is shared by runs and run tasks.
type RunStatus string

const (
	StatusPending               RunStatus = "PENDING"
	StatusMissing               RunStatus = "MISSING"
	StatusRunning               RunStatus = "RUNNING"
	StatusCompleted             RunStatus = "COMPLETED"
	StatusCompletedWithWarnings RunStatus = "COMPLETED_WITH_WARNINGS"
	StatusFailed                RunStatus = "FAILED"
)

// severity orders statuses for max-aggregation.
var severity = map[RunStatus]int{
	StatusPending:               0,
	StatusMissing:               1,
	StatusRunning:               2,
	StatusCompleted:             3,
	StatusCompletedWithWarnings: 4,
	StatusFailed:                5,
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	_, ok := severity[s]
	return ok
}

// IsEnd reports whether s closes a run or task.
func (s RunStatus) IsEnd() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed:
		return true
	}
	return false
}

// IsStarted reports whether s implies the run has actually begun.
func (s RunStatus) IsStarted() bool {
	return s == StatusRunning || s.IsEnd()
}

// IsUnfinished reports whether s is RUNNING or PENDING.
func (s RunStatus) IsUnfinished() bool {
	return s == StatusRunning || s == StatusPending
}

// Severity returns the aggregation rank of s.
func (s RunStatus) Severity() int {
	return severity[s]
}

// MaxStatus returns the more severe of a and b.
func MaxStatus(a, b RunStatus) RunStatus {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// UnfinishedStatuses lists the statuses of runs that have not finished.
var UnfinishedStatuses = []RunStatus{StatusRunning, StatusPending}

// Run is one execution of a batch pipeline.
type Run struct {
	ID                string
	PipelineID        string
	Key               *string
	Name              string
	Status            RunStatus
	StartTime         *time.Time
	EndTime           *time.Time
	ExpectedStartTime *time.Time
	ExpectedEndTime   *time.Time
	InstanceSetID     *string
	CreatedOn         time.Time
}

func (r *Run) GetStatus() RunStatus      { return r.Status }
func (r *Run) SetStatus(s RunStatus)     { r.Status = s }
func (r *Run) GetStartTime() *time.Time  { return r.StartTime }
func (r *Run) SetStartTime(t *time.Time) { r.StartTime = t }
func (r *Run) GetEndTime() *time.Time    { return r.EndTime }
func (r *Run) SetEndTime(t *time.Time)   { r.EndTime = t }

// KeyOrEmpty returns the run key or "" for a pending run without one.
func (r *Run) KeyOrEmpty() string { return deref(r.Key) }

// HasKey reports whether the run carries exactly key.
func (r *Run) HasKey(key string) bool { return r.Key != nil && *r.Key == key }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

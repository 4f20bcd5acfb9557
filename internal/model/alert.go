package model

import "time"

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	LevelError   AlertLevel = "ERROR"
	LevelWarning AlertLevel = "WARNING"
)

// RunAlertType enumerates run anomalies.
type RunAlertType string

const (
	RunAlertLateStart              RunAlertType = "LATE_START"
	RunAlertLateEnd                RunAlertType = "LATE_END"
	RunAlertMissingRun             RunAlertType = "MISSING_RUN"
	RunAlertCompletedWithWarnings  RunAlertType = "COMPLETED_WITH_WARNINGS"
	RunAlertFailed                 RunAlertType = "FAILED"
	RunAlertUnexpectedStatusChange RunAlertType = "UNEXPECTED_STATUS_CHANGE"
)

// InstanceAlertType enumerates instance anomalies.
type InstanceAlertType string

const (
	InstanceAlertTestsFailed      InstanceAlertType = "TESTS_FAILED"
	InstanceAlertTestsHadWarnings InstanceAlertType = "TESTS_HAD_WARNINGS"
	InstanceAlertOutOfSequence    InstanceAlertType = "OUT_OF_SEQUENCE"
	InstanceAlertIncomplete       InstanceAlertType = "INCOMPLETE"
)

// RunAlert is an anomaly attributed to a run.
type RunAlert struct {
	ID                string
	RunID             string
	Type              RunAlertType
	Level             AlertLevel
	Description       string
	ExpectedStartTime *time.Time
	ExpectedEndTime   *time.Time
	CreatedOn         time.Time
}

// InstanceAlert is an anomaly attributed to an instance and the components
// involved.
type InstanceAlert struct {
	ID           string
	InstanceID   string
	Type         InstanceAlertType
	Level        AlertLevel
	Description  string
	ComponentIDs []string
	CreatedOn    time.Time
}

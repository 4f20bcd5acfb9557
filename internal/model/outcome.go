package model

import (
	"encoding/json"
	"time"
)

// TestStatus is the result of a single test.
type TestStatus string

const (
	TestPassed  TestStatus = "PASSED"
	TestWarning TestStatus = "WARNING"
	TestFailed  TestStatus = "FAILED"
)

var testSeverity = map[TestStatus]int{TestPassed: 0, TestWarning: 1, TestFailed: 2}

// WorseThan reports whether s is more severe than other.
func (s TestStatus) WorseThan(other TestStatus) bool {
	return testSeverity[s] > testSeverity[other]
}

// TestOutcome is one persisted test result.
type TestOutcome struct {
	ID            string
	ComponentID   string
	RunID         *string
	TaskID        *string
	RunTaskID     *string
	InstanceSetID *string
	Name          string
	Key           string
	Status        TestStatus
	Description   string
	Type          string
	Result        string
	StartTime     *time.Time
	EndTime       *time.Time
	MetricValue   *float64
	MinThreshold  *float64
	MaxThreshold  *float64
	Dimensions    []string
	ExternalURL   string
	// Integrations holds the nested testgen sub-record as a JSON document.
	Integrations json.RawMessage
}

// DatasetOperationType is a read or write against a dataset.
type DatasetOperationType string

const (
	DatasetRead  DatasetOperationType = "READ"
	DatasetWrite DatasetOperationType = "WRITE"
)

// DatasetOperation records a dataset read/write event.
type DatasetOperation struct {
	ID            string
	DatasetID     string
	InstanceSetID *string
	Operation     DatasetOperationType
	Path          string
	OperationTime time.Time
}

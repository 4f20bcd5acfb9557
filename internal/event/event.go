// Package event defines the normalized domain events consumed and produced by
// the run manager.
package event

import (
	"time"

	"github.com/mattjoyce/runwatch/internal/model"
)

// Kind discriminates the event union.
type Kind string

const (
	KindRunStatus        Kind = "RUN_STATUS"
	KindMessageLog       Kind = "MESSAGE_LOG"
	KindMetricLog        Kind = "METRIC_LOG"
	KindTestOutcomes     Kind = "TEST_OUTCOMES"
	KindDatasetOperation Kind = "DATASET_OPERATION"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRunStatus, KindMessageLog, KindMetricLog, KindTestOutcomes, KindDatasetOperation:
		return true
	}
	return false
}

// Source identifies who produced an event.
const (
	SourceAPI       = "API"
	SourceScheduler = "SCHEDULER"
)

// Current schema version of events written by this service.
const Version = 2

// Event is one normalized lifecycle event. Exactly one of the component key
// fields is expected to be set; the resolved id fields are filled in by the
// run manager before the event is re-emitted as identified.
type Event struct {
	ID        string `msgpack:"event_id"`
	Kind      Kind   `msgpack:"kind"`
	Version   int    `msgpack:"version"`
	ProjectID string `msgpack:"project_id"`
	Source    string `msgpack:"source,omitempty"`

	PipelineKey   string `msgpack:"pipeline_key,omitempty"`
	DatasetKey    string `msgpack:"dataset_key,omitempty"`
	ServerKey     string `msgpack:"server_key,omitempty"`
	StreamKey     string `msgpack:"stream_key,omitempty"`
	ComponentID   string `msgpack:"component_id,omitempty"`
	ComponentName string `msgpack:"component_name,omitempty"`
	ComponentTool string `msgpack:"component_tool,omitempty"`

	RunKey        string `msgpack:"run_key,omitempty"`
	RunName       string `msgpack:"run_name,omitempty"`
	RunID         string `msgpack:"run_id,omitempty"`
	TaskKey       string `msgpack:"task_key,omitempty"`
	TaskName      string `msgpack:"task_name,omitempty"`
	TaskID        string `msgpack:"task_id,omitempty"`
	RunTaskID     string `msgpack:"run_task_id,omitempty"`
	InstanceSetID string `msgpack:"instance_set_id,omitempty"`

	EventTimestamp    time.Time           `msgpack:"event_timestamp"`
	ReceivedTimestamp time.Time           `msgpack:"received_timestamp"`
	Metadata          map[string]any      `msgpack:"metadata,omitempty"`
	PayloadKeys       []string            `msgpack:"payload_keys,omitempty"`
	Instances         []model.InstanceRef `msgpack:"instances,omitempty"`
	ExternalURL       string              `msgpack:"external_url,omitempty"`

	// RunStatus
	Status model.RunStatus `msgpack:"status,omitempty"`

	// MessageLog
	LogLevel string `msgpack:"log_level,omitempty"`
	Message  string `msgpack:"message,omitempty"`

	// MetricLog
	MetricKey   string  `msgpack:"metric_key,omitempty"`
	MetricValue float64 `msgpack:"metric_value,omitempty"`

	// TestOutcomes
	TestOutcomes []TestOutcomeItem `msgpack:"test_outcomes,omitempty"`

	// DatasetOperation
	Operation model.DatasetOperationType `msgpack:"operation,omitempty"`
	Path      string                     `msgpack:"path,omitempty"`
}

// ComponentRef returns the component type and key derived from whichever key
// field is populated. ok is false unless exactly one is set.
func (e *Event) ComponentRef() (typ model.ComponentType, key string, ok bool) {
	set := 0
	for _, c := range []struct {
		typ model.ComponentType
		key string
	}{
		{model.ComponentBatchPipeline, e.PipelineKey},
		{model.ComponentDataset, e.DatasetKey},
		{model.ComponentServer, e.ServerKey},
		{model.ComponentStreamingPipeline, e.StreamKey},
	} {
		if c.key == "" {
			continue
		}
		set++
		typ, key = c.typ, c.key
	}
	if set != 1 {
		return "", "", false
	}
	return typ, key, true
}

// ComponentType returns the derived component type, or "" when the event
// does not reference exactly one component key.
func (e *Event) ComponentType() model.ComponentType {
	typ, _, _ := e.ComponentRef()
	return typ
}

// IsRunLevel reports whether the event concerns the run rather than a task.
func (e *Event) IsRunLevel() bool {
	return e.TaskKey == ""
}

// IsCloseRun reports whether the event is a run-level terminal status.
func (e *Event) IsCloseRun() bool {
	return e.Kind == KindRunStatus && e.IsRunLevel() && e.Status.IsEnd()
}

// PartitionKey is the Kafka record key that keeps a project's events ordered.
func (e *Event) PartitionKey() string {
	return e.ProjectID
}

// ExpectedStartTime reads the expected_start_time metadata entry.
func (e *Event) ExpectedStartTime() *time.Time {
	return e.metadataTime("expected_start_time")
}

// ExpectedEndTime reads the expected_end_time metadata entry.
func (e *Event) ExpectedEndTime() *time.Time {
	return e.metadataTime("expected_end_time")
}

func (e *Event) metadataTime(key string) *time.Time {
	raw, ok := e.Metadata[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case time.Time:
		t := v.UTC()
		return &t
	case *time.Time:
		if v == nil {
			return nil
		}
		t := v.UTC()
		return &t
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// TestOutcomeItem is a single test result reported by a TestOutcomes event.
type TestOutcomeItem struct {
	Name         string            `msgpack:"name"`
	Key          string            `msgpack:"key,omitempty"`
	Status       model.TestStatus  `msgpack:"status"`
	Description  string            `msgpack:"description,omitempty"`
	Type         string            `msgpack:"type,omitempty"`
	Result       string            `msgpack:"result,omitempty"`
	StartTime    *time.Time        `msgpack:"start_time,omitempty"`
	EndTime      *time.Time        `msgpack:"end_time,omitempty"`
	MetricValue  *float64          `msgpack:"metric_value,omitempty"`
	MinThreshold *float64          `msgpack:"min_threshold,omitempty"`
	MaxThreshold *float64          `msgpack:"max_threshold,omitempty"`
	Dimensions   []string          `msgpack:"dimensions,omitempty"`
	ExternalURL  string            `msgpack:"external_url,omitempty"`
	Integrations *TestIntegrations `msgpack:"integrations,omitempty"`
}

// TestIntegrations holds tool-specific test details.
type TestIntegrations struct {
	Testgen *TestgenItem `msgpack:"testgen,omitempty" json:"testgen,omitempty"`
}

// TestgenItem is the testgen integration sub-record.
type TestgenItem struct {
	TableName      string             `msgpack:"table" json:"table"`
	Columns        []string           `msgpack:"columns,omitempty" json:"columns,omitempty"`
	TestSuite      string             `msgpack:"test_suite" json:"test_suite"`
	Version        int                `msgpack:"version" json:"version"`
	TestParameters []TestgenParameter `msgpack:"test_parameters,omitempty" json:"test_parameters,omitempty"`
}

// TestgenParameter is one name/value test parameter.
type TestgenParameter struct {
	Name  string `msgpack:"name" json:"name"`
	Value any    `msgpack:"value" json:"value"`
}

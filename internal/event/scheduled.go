package event

import "time"

// ScheduleType is what a scheduled event checks.
type ScheduleType string

const (
	ScheduleBatchStartTime ScheduleType = "BATCH_START_TIME"
	ScheduleBatchEndTime   ScheduleType = "BATCH_END_TIME"
)

// ScheduledEvent is emitted by the scheduler when an expected moment passes.
// ScheduleMargin, when set, is the grace deadline after ScheduleTimestamp at
// which the event fired.
type ScheduledEvent struct {
	ScheduleID        string       `msgpack:"schedule_id"`
	ProjectID         string       `msgpack:"project_id"`
	ComponentID       string       `msgpack:"component_id"`
	ScheduleType      ScheduleType `msgpack:"schedule_type"`
	ScheduleTimestamp time.Time    `msgpack:"schedule_timestamp"`
	ScheduleMargin    *time.Time   `msgpack:"schedule_margin,omitempty"`
}

// PartitionKey keeps scheduled events in the same partition as the
// project's lifecycle events.
func (s *ScheduledEvent) PartitionKey() string {
	return s.ProjectID
}

package model

import "time"

// InstanceStartType records what caused an instance to begin.
type InstanceStartType string

const (
	StartDefault InstanceStartType = "DEFAULT"
	StartBatch   InstanceStartType = "BATCH"
	StartPayload InstanceStartType = "PAYLOAD"
)

// Instance is one logical execution through a journey.
type Instance struct {
	ID         string
	JourneyID  string
	StartTime  time.Time
	EndTime    *time.Time
	PayloadKey *string
	StartType  InstanceStartType
}

// Active reports whether the instance is still open.
func (i *Instance) Active() bool { return i.EndTime == nil }

// IsPayload reports whether the instance is scoped to a payload key.
func (i *Instance) IsPayload() bool { return i.PayloadKey != nil }

// InstanceRef is the lightweight reference carried on events and in the
// run manager context.
type InstanceRef struct {
	JourneyID  string `msgpack:"journey_id" json:"journey_id"`
	InstanceID string `msgpack:"instance_id" json:"instance_id"`
	Payload    bool   `msgpack:"payload,omitempty" json:"payload,omitempty"`
}

// Ref returns the lightweight reference for i.
func (i *Instance) Ref() InstanceRef {
	return InstanceRef{JourneyID: i.JourneyID, InstanceID: i.ID, Payload: i.IsPayload()}
}

// InstanceSet is a content-addressed set of instance ids shared by runs.
type InstanceSet struct {
	ID          string
	Digest      string
	InstanceIDs []string
}

// RuleAction is what an InstanceRule does to a journey's instances.
type RuleAction string

const (
	RuleStart      RuleAction = "START"
	RuleEnd        RuleAction = "END"
	RuleEndPayload RuleAction = "END_PAYLOAD"
)

// InstanceRule is per-journey instance automation owned by configuration.
type InstanceRule struct {
	ID              string
	JourneyID       string
	Action          RuleAction
	BatchPipelineID *string
	Expression      *string
	Timezone        *string
}

// MatchesPipeline reports whether the rule is scoped to pipelineID.
func (r *InstanceRule) MatchesPipeline(pipelineID string) bool {
	return r.BatchPipelineID != nil && *r.BatchPipelineID == pipelineID
}

// Journey is a DAG of components.
type Journey struct {
	ID        string
	ProjectID string
	Name      string
}

// JourneyEdge is one DAG edge; a nil LeftID declares a root node.
type JourneyEdge struct {
	ID        string
	JourneyID string
	LeftID    *string
	RightID   string
}

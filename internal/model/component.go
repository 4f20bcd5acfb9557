package model

import "time"

// ComponentType identifies which kind of entity a Component is.
type ComponentType string

const (
	ComponentBatchPipeline     ComponentType = "BATCH_PIPELINE"
	ComponentDataset           ComponentType = "DATASET"
	ComponentServer            ComponentType = "SERVER"
	ComponentStreamingPipeline ComponentType = "STREAMING_PIPELINE"
)

// Valid reports whether t is one of the known component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentBatchPipeline, ComponentDataset, ComponentServer, ComponentStreamingPipeline:
		return true
	}
	return false
}

// Component is a pipeline, dataset, server or streaming pipeline, unique per
// (ProjectID, Type, Key).
type Component struct {
	ID        string
	ProjectID string
	Type      ComponentType
	Key       string
	Name      string
	Tool      string
	CreatedOn time.Time
}

// IsBatchPipeline reports whether the component owns runs.
func (c *Component) IsBatchPipeline() bool {
	return c != nil && c.Type == ComponentBatchPipeline
}

// DisplayName returns the name, falling back to the key.
func (c *Component) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Key
}

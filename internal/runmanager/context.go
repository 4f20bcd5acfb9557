package runmanager

import (
	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
)

// Context is the scratch state threaded through the handlers while one event
// is processed. It is created per event and never shared.
type Context struct {
	Event *event.Event

	Component *model.Component
	// Pipeline is set when Component is a batch pipeline.
	Pipeline *model.Component

	Run           *model.Run
	CreatedRun    bool
	StartedRun    bool
	PrevRunStatus model.RunStatus

	Task    *model.Task
	RunTask *model.RunTask

	Instances      []*model.Instance
	InstanceSet    *model.InstanceSet
	EndedInstances []*model.Instance

	RequiredTasksCreated bool

	RunAlerts      []*model.RunAlert
	InstanceAlerts []*model.InstanceAlert

	journeys map[string]string
}

func newContext(e *event.Event) *Context {
	return &Context{Event: e, journeys: map[string]string{}}
}

// track remembers the journey of every instance seen during the pass so
// alerts can be emitted without reloading them.
func (c *Context) track(instances ...*model.Instance) {
	for _, in := range instances {
		c.journeys[in.ID] = in.JourneyID
	}
}

func (c *Context) journeyOf(instanceID string) (string, bool) {
	j, ok := c.journeys[instanceID]
	return j, ok
}

// InstanceRefs returns the lightweight references of the instances in play.
func (c *Context) InstanceRefs() []model.InstanceRef {
	refs := make([]model.InstanceRef, 0, len(c.Instances))
	for _, in := range c.Instances {
		refs = append(refs, in.Ref())
	}
	return refs
}

func (c *Context) instanceIDs() []string {
	ids := make([]string, 0, len(c.Instances))
	for _, in := range c.Instances {
		ids = append(ids, in.ID)
	}
	return ids
}

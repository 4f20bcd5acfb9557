package runmanager

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/store"
)

// InstanceHandler decides which journey instances an event belongs to,
// starts and closes instances, and keeps the run's instance set current.
type InstanceHandler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *InstanceHandler) Name() string { return "instance" }

func (h *InstanceHandler) Handle(ctx context.Context, c *Context) error {
	if err := h.setInstances(ctx, c); err != nil {
		return err
	}
	if c.Event.Kind == event.KindRunStatus && c.Pipeline != nil && c.Event.IsCloseRun() {
		return h.closeInstances(ctx, c)
	}
	return nil
}

func (h *InstanceHandler) setInstances(ctx context.Context, c *Context) error {
	if c.CreatedRun {
		if err := h.applyStartRules(ctx, c); err != nil {
			return err
		}
	}

	var (
		instances []*model.Instance
		err       error
	)
	if c.Run == nil || c.CreatedRun || c.StartedRun || c.Run.InstanceSetID == nil {
		instances, err = h.defaultInstances(ctx, c)
	} else {
		// A continuing run keeps the instances it started with.
		instances, err = h.st.InstanceSetInstances(ctx, *c.Run.InstanceSetID)
	}
	if err != nil {
		return err
	}
	c.Instances = instances
	c.track(instances...)

	if len(instances) == 0 {
		return nil
	}
	set, err := h.st.GetOrCreateInstanceSet(ctx, c.instanceIDs())
	if err != nil {
		return err
	}
	c.InstanceSet = set
	c.Event.InstanceSetID = set.ID

	if c.Run != nil && (c.Run.InstanceSetID == nil || *c.Run.InstanceSetID != set.ID) {
		id := set.ID
		c.Run.InstanceSetID = &id
		if err := h.st.UpdateRun(ctx, c.Run); err != nil {
			return err
		}
	}
	return nil
}

// defaultInstances returns, for every journey containing the component, the
// default instance plus one instance per payload key where the journey opts
// into payload instances. Missing instances are created in one batch.
func (h *InstanceHandler) defaultInstances(ctx context.Context, c *Context) ([]*model.Instance, error) {
	e := c.Event
	journeys, err := h.st.JourneysForComponent(ctx, c.Component.ID)
	if err != nil || len(journeys) == 0 {
		return nil, err
	}

	journeyIDs := make([]string, 0, len(journeys))
	for _, j := range journeys {
		journeyIDs = append(journeyIDs, j.ID)
	}
	rules, err := h.st.InstanceRules(ctx, journeyIDs)
	if err != nil {
		return nil, err
	}
	payloadJourneys := map[string]bool{}
	for _, r := range rules {
		if r.Action == model.RuleEndPayload {
			payloadJourneys[r.JourneyID] = true
		}
	}

	payloadKeys := slices.Clone(e.PayloadKeys)
	slices.Sort(payloadKeys)
	payloadKeys = slices.Compact(payloadKeys)

	var out, created []*model.Instance
	for _, j := range journeys {
		keys := []*string{nil}
		if payloadJourneys[j.ID] {
			for _, k := range payloadKeys {
				if k == "" {
					continue
				}
				keys = append(keys, &k)
			}
		}

		for _, key := range keys {
			in, err := h.findReusable(ctx, c, j.ID, key)
			if err != nil {
				return nil, err
			}
			if in == nil {
				in = &model.Instance{
					JourneyID:  j.ID,
					StartTime:  e.EventTimestamp.UTC(),
					PayloadKey: key,
					StartType:  model.StartDefault,
				}
				if key != nil {
					in.StartType = model.StartPayload
				}
				created = append(created, in)
			}
			out = append(out, in)
		}
	}

	if err := h.st.CreateInstances(ctx, created); err != nil {
		return nil, err
	}
	for _, in := range created {
		h.logger.Debug("instance created", "instance_id", in.ID, "journey_id", in.JourneyID, "start_type", in.StartType)
	}
	return out, nil
}

// findReusable prefers the default instance already tied to the run, then
// any active instance with the same payload key.
func (h *InstanceHandler) findReusable(ctx context.Context, c *Context, journeyID string, key *string) (*model.Instance, error) {
	if key == nil && c.Run != nil && c.Run.InstanceSetID != nil {
		in, err := h.st.RunInstance(ctx, c.Run.ID, journeyID)
		if err == nil {
			return in, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	in, err := h.st.ActiveInstance(ctx, journeyID, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return in, err
}

// applyStartRules begins a fresh instance in every journey whose START rule
// names the pipeline, closing the journey's open default instances first.
func (h *InstanceHandler) applyStartRules(ctx context.Context, c *Context) error {
	if c.Pipeline == nil {
		return nil
	}
	journeys, err := h.st.JourneysForComponent(ctx, c.Pipeline.ID)
	if err != nil || len(journeys) == 0 {
		return err
	}
	journeyIDs := make([]string, 0, len(journeys))
	for _, j := range journeys {
		journeyIDs = append(journeyIDs, j.ID)
	}
	rules, err := h.st.InstanceRules(ctx, journeyIDs)
	if err != nil {
		return err
	}

	ts := c.Event.EventTimestamp.UTC()
	started := map[string]bool{}
	for _, r := range rules {
		if r.Action != model.RuleStart || !r.MatchesPipeline(c.Pipeline.ID) || started[r.JourneyID] {
			continue
		}
		started[r.JourneyID] = true

		open, err := h.st.ActiveDefaultInstances(ctx, r.JourneyID)
		if err != nil {
			return err
		}
		for _, in := range open {
			if err := h.end(ctx, c, in, ts); err != nil {
				return err
			}
		}
		fresh := &model.Instance{JourneyID: r.JourneyID, StartTime: ts, StartType: model.StartBatch}
		if err := h.st.CreateInstances(ctx, []*model.Instance{fresh}); err != nil {
			return err
		}
		h.logger.Debug("instance started by rule", "instance_id", fresh.ID, "journey_id", r.JourneyID)
	}
	return nil
}

// closeInstances runs when a run closes. Journeys with END or END_PAYLOAD
// rules naming the pipeline close the matching instances; journeys without
// any rule close an instance once every batch pipeline in the journey has a
// finished run in it.
func (h *InstanceHandler) closeInstances(ctx context.Context, c *Context) error {
	if len(c.Instances) == 0 {
		return nil
	}
	var journeyIDs []string
	for _, in := range c.Instances {
		if !slices.Contains(journeyIDs, in.JourneyID) {
			journeyIDs = append(journeyIDs, in.JourneyID)
		}
	}
	rules, err := h.st.InstanceRules(ctx, journeyIDs)
	if err != nil {
		return err
	}
	byJourney := map[string][]*model.InstanceRule{}
	for _, r := range rules {
		byJourney[r.JourneyID] = append(byJourney[r.JourneyID], r)
	}

	ts := c.Event.EventTimestamp.UTC()
	for _, in := range c.Instances {
		if !in.Active() {
			continue
		}
		jr := byJourney[in.JourneyID]
		if len(jr) == 0 {
			done, err := h.journeyFinished(ctx, in)
			if err != nil {
				return err
			}
			if done {
				if err := h.end(ctx, c, in, ts); err != nil {
					return err
				}
			}
			continue
		}
		for _, r := range jr {
			if !r.MatchesPipeline(c.Pipeline.ID) {
				continue
			}
			if (r.Action == model.RuleEnd && !in.IsPayload()) ||
				(r.Action == model.RuleEndPayload && in.IsPayload()) {
				if err := h.end(ctx, c, in, ts); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func (h *InstanceHandler) journeyFinished(ctx context.Context, in *model.Instance) (bool, error) {
	pipelines, err := h.st.JourneyPipelines(ctx, in.JourneyID)
	if err != nil {
		return false, err
	}
	counts, err := h.st.FinishedRunCounts(ctx, in.ID, model.UnfinishedStatuses, pipelines, nil)
	if err != nil {
		return false, err
	}
	for _, id := range pipelines {
		if counts[id] == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (h *InstanceHandler) end(ctx context.Context, c *Context, in *model.Instance, ts time.Time) error {
	ended, err := h.st.EndInstance(ctx, in.ID, ts)
	if err != nil || !ended {
		return err
	}
	in.EndTime = &ts
	c.track(in)
	c.EndedInstances = append(c.EndedInstances, in)
	h.logger.Debug("instance closed", "instance_id", in.ID, "journey_id", in.JourneyID)
	return nil
}

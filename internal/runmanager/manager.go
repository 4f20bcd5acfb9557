package runmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/runwatch/internal/codec"
	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/log"
	"github.com/mattjoyce/runwatch/internal/store"
)

var (
	// ErrRunNotResolved means a batch pipeline event ended up without a run.
	ErrRunNotResolved = errors.New("run not resolved")
	// ErrInvalidEvent marks events that can never be processed.
	ErrInvalidEvent = errors.New("invalid event")
)

// Handler is one stage of the per-event pipeline.
type Handler interface {
	Name() string
	Handle(ctx context.Context, c *Context) error
}

// Outcome is what processing one message produced.
type Outcome struct {
	// DeadLetter is set when the message must be forwarded unchanged to the
	// dead-letter topic. No state was changed.
	DeadLetter bool

	Identified     *event.Event
	RunAlerts      []*event.RunAlert
	InstanceAlerts []*event.InstanceAlert
}

// Alerts returns the number of alerts in the outcome.
func (o *Outcome) Alerts() int {
	if o == nil {
		return 0
	}
	return len(o.RunAlerts) + len(o.InstanceAlerts)
}

// Manager runs events through the handler pipeline.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Manager. st supplies dialect and clock; each call binds it
// to the caller's transaction.
func New(st *store.Store) *Manager {
	return &Manager{
		store:  st,
		logger: log.WithComponent("runmanager"),
		now:    time.Now,
	}
}

// Process handles one lifecycle event inside the caller's transaction db.
// The input event is not modified; the identified copy is returned in the
// outcome.
func (m *Manager) Process(ctx context.Context, db store.DB, e *event.Event) (*Outcome, error) {
	ev := *e
	return m.process(ctx, m.store.WithDB(db), &ev)
}

func (m *Manager) process(ctx context.Context, st *store.Store, e *event.Event) (*Outcome, error) {
	if err := m.normalize(e); err != nil {
		return nil, err
	}
	logger := m.logger.With("event_id", e.ID, "kind", e.Kind)
	c := newContext(e)

	identifier := &ComponentIdentifier{st: st, logger: logger}
	ok, err := identifier.Identify(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("identify component: %w", err)
	}
	if !ok {
		logger.Warn("no resolvable component; dead-lettering")
		return &Outcome{DeadLetter: true}, nil
	}

	for _, h := range handlers(st, logger) {
		if err := h.Handle(ctx, c); err != nil {
			return nil, fmt.Errorf("%s handler: %w", h.Name(), err)
		}
	}
	e.Instances = c.InstanceRefs()

	if err := m.saveEvent(ctx, st, e); err != nil {
		return nil, err
	}
	return m.outcome(ctx, st, c)
}

// handlers lists the stages in the order they must run. Status-change
// detection reads the run state the run and instance stages settled.
func handlers(st *store.Store, logger *slog.Logger) []Handler {
	return []Handler{
		&RunHandler{st: st, logger: logger},
		&InstanceHandler{st: st, logger: logger},
		&StatusChangeHandler{st: st, logger: logger},
		&TaskHandler{st: st, logger: logger},
		&TestOutcomeHandler{st: st, logger: logger},
		&DatasetHandler{st: st, logger: logger},
		&IncompleteHandler{st: st, logger: logger},
		&OutOfSequenceHandler{st: st, logger: logger},
	}
}

func (m *Manager) normalize(e *event.Event) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", e.Kind, ErrInvalidEvent)
	}
	if e.Kind == event.KindRunStatus && !e.Status.Valid() {
		return fmt.Errorf("status %q: %w", e.Status, ErrInvalidEvent)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Version == 0 {
		e.Version = event.Version
	}
	if e.ReceivedTimestamp.IsZero() {
		e.ReceivedTimestamp = m.now()
	}
	if e.EventTimestamp.IsZero() {
		e.EventTimestamp = e.ReceivedTimestamp
	}
	e.ReceivedTimestamp = e.ReceivedTimestamp.UTC()
	e.EventTimestamp = e.EventTimestamp.UTC()
	return nil
}

func (m *Manager) saveEvent(ctx context.Context, st *store.Store, e *event.Event) error {
	payload, err := codec.Encode(e)
	if err != nil {
		return err
	}
	entity := &store.EventEntity{
		ID:                e.ID,
		Version:           e.Version,
		Type:              string(e.Kind),
		ProjectID:         e.ProjectID,
		ComponentID:       optional(e.ComponentID),
		RunID:             optional(e.RunID),
		TaskID:            optional(e.TaskID),
		RunTaskID:         optional(e.RunTaskID),
		InstanceSetID:     optional(e.InstanceSetID),
		EventTimestamp:    e.EventTimestamp,
		ReceivedTimestamp: e.ReceivedTimestamp,
		Payload:           payload,
	}
	if _, err := st.SaveEventEntity(ctx, entity); err != nil {
		return err
	}
	return nil
}

func (m *Manager) outcome(ctx context.Context, st *store.Store, c *Context) (*Outcome, error) {
	out := &Outcome{Identified: c.Event}
	projectID := c.Component.ProjectID

	for _, a := range c.RunAlerts {
		out.RunAlerts = append(out.RunAlerts, event.NewRunAlert(projectID, a, c.Run, c.Pipeline))
	}
	for _, a := range c.InstanceAlerts {
		journeyID, ok := c.journeyOf(a.InstanceID)
		if !ok {
			in, err := st.GetInstance(ctx, a.InstanceID)
			if err != nil {
				return nil, err
			}
			journeyID = in.JourneyID
		}
		out.InstanceAlerts = append(out.InstanceAlerts, event.NewInstanceAlert(projectID, journeyID, a))
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package codec encodes and decodes the msgpack envelope carried on every
// Kafka topic the run manager reads or writes.
package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattjoyce/runwatch/internal/event"
)

// Type names the body carried by an envelope.
type Type string

const (
	TypeEvent          Type = "event"
	TypeScheduledEvent Type = "scheduled_event"
	TypeRunAlert       Type = "run_alert"
	TypeInstanceAlert  Type = "instance_alert"
)

// ErrUnknownType is returned for envelopes whose type is not recognized.
var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type Type               `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// Encode wraps v in a typed envelope.
func Encode(v any) ([]byte, error) {
	var typ Type
	switch v.(type) {
	case *event.Event:
		typ = TypeEvent
	case *event.ScheduledEvent:
		typ = TypeScheduledEvent
	case *event.RunAlert:
		typ = TypeRunAlert
	case *event.InstanceAlert:
		typ = TypeInstanceAlert
	default:
		return nil, fmt.Errorf("encode %T: %w", v, ErrUnknownType)
	}

	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", typ, err)
	}
	data, err := msgpack.Marshal(&envelope{Type: typ, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", typ, err)
	}
	return data, nil
}

// Decode unwraps an envelope and returns its typed body as a pointer to one
// of the event package message types.
func Decode(data []byte) (Type, any, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}

	var v any
	switch env.Type {
	case TypeEvent:
		v = &event.Event{}
	case TypeScheduledEvent:
		v = &event.ScheduledEvent{}
	case TypeRunAlert:
		v = &event.RunAlert{}
	case TypeInstanceAlert:
		v = &event.InstanceAlert{}
	default:
		return env.Type, nil, fmt.Errorf("decode %q: %w", env.Type, ErrUnknownType)
	}
	if err := msgpack.Unmarshal(env.Body, v); err != nil {
		return env.Type, nil, fmt.Errorf("decode %s body: %w", env.Type, err)
	}
	normalize(v)
	return env.Type, v, nil
}

// DecodeEvent decodes an envelope that must carry a lifecycle event.
func DecodeEvent(data []byte) (*event.Event, error) {
	typ, v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*event.Event)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %s: %w", TypeEvent, typ, ErrUnknownType)
	}
	return e, nil
}

// DecodeScheduledEvent decodes an envelope that must carry a scheduled event.
func DecodeScheduledEvent(data []byte) (*event.ScheduledEvent, error) {
	typ, v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*event.ScheduledEvent)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %s: %w", TypeScheduledEvent, typ, ErrUnknownType)
	}
	return s, nil
}

// normalize moves decoded timestamps to UTC; msgpack restores them in the
// local zone.
func normalize(v any) {
	switch m := v.(type) {
	case *event.Event:
		m.EventTimestamp = m.EventTimestamp.UTC()
		m.ReceivedTimestamp = m.ReceivedTimestamp.UTC()
	case *event.ScheduledEvent:
		m.ScheduleTimestamp = m.ScheduleTimestamp.UTC()
		if m.ScheduleMargin != nil {
			t := m.ScheduleMargin.UTC()
			m.ScheduleMargin = &t
		}
	case *event.RunAlert:
		m.CreatedTimestamp = m.CreatedTimestamp.UTC()
	case *event.InstanceAlert:
		m.CreatedTimestamp = m.CreatedTimestamp.UTC()
	}
}

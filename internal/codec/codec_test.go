package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/model"
)

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 500, time.UTC)
	in := &event.Event{
		ID:                "evt-1",
		Kind:              event.KindTestOutcomes,
		Version:           event.Version,
		ProjectID:         "proj",
		PipelineKey:       "P1",
		RunKey:            "R1",
		TaskKey:           "T1",
		EventTimestamp:    ts,
		ReceivedTimestamp: ts.Add(time.Second),
		PayloadKeys:       []string{"a", "b"},
		Metadata:          map[string]any{"expected_start_time": "2026-03-01T12:00:00Z"},
		Instances:         []model.InstanceRef{{JourneyID: "j1", InstanceID: "i1"}},
		TestOutcomes: []event.TestOutcomeItem{{
			Name:   "row_count",
			Status: model.TestFailed,
			Integrations: &event.TestIntegrations{Testgen: &event.TestgenItem{
				TableName: "orders",
				TestSuite: "nightly",
				Version:   1,
			}},
		}},
	}

	data, err := Encode(in)
	require.NoError(t, err)

	typ, v, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeEvent, typ)

	out, ok := v.(*event.Event)
	require.True(t, ok)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.PayloadKeys, out.PayloadKeys)
	assert.Equal(t, in.Instances, out.Instances)
	assert.True(t, in.EventTimestamp.Equal(out.EventTimestamp))
	assert.Equal(t, time.UTC, out.EventTimestamp.Location())
	require.Len(t, out.TestOutcomes, 1)
	require.NotNil(t, out.TestOutcomes[0].Integrations)
	assert.Equal(t, "orders", out.TestOutcomes[0].Integrations.Testgen.TableName)

	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NotNil(t, out.ExpectedStartTime())
	assert.True(t, want.Equal(*out.ExpectedStartTime()))
}

func TestScheduledEventRoundTrip(t *testing.T) {
	margin := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	in := &event.ScheduledEvent{
		ScheduleID:        "s1",
		ProjectID:         "proj",
		ComponentID:       "c1",
		ScheduleType:      event.ScheduleBatchStartTime,
		ScheduleTimestamp: margin.Add(-15 * time.Minute),
		ScheduleMargin:    &margin,
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := DecodeScheduledEvent(data)
	require.NoError(t, err)
	assert.Equal(t, in.ScheduleType, out.ScheduleType)
	require.NotNil(t, out.ScheduleMargin)
	assert.True(t, margin.Equal(*out.ScheduleMargin))
}

func TestDecodeEventRejectsOtherTypes(t *testing.T) {
	data, err := Encode(&event.RunAlert{AlertID: "a1", Type: model.RunAlertFailed})
	require.NoError(t, err)

	_, err = DecodeEvent(data)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{"type": "bogus", "body": []byte{0xc0}})
	require.NoError(t, err)

	_, _, err = Decode(data)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestEncodeUnsupported(t *testing.T) {
	_, err := Encode("nope")
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDecodeGarbage(t *testing.T) {
	_, _, err := Decode([]byte{0xff, 0x00, 0x01})
	assert.Error(t, err)
}

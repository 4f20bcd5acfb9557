package dispatch

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/runwatch/internal/codec"
	"github.com/mattjoyce/runwatch/internal/dispatch/mocks"
	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/kafka"
	"github.com/mattjoyce/runwatch/internal/log"
	"github.com/mattjoyce/runwatch/internal/metrics"
	"github.com/mattjoyce/runwatch/internal/model"
	"github.com/mattjoyce/runwatch/internal/monitor"
	"github.com/mattjoyce/runwatch/internal/runmanager"
	"github.com/mattjoyce/runwatch/internal/storage"
	"github.com/mattjoyce/runwatch/internal/store"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

var testTopics = kafka.Topics{
	Unidentified: "unidentified_events",
	Scheduled:    "scheduled_events",
	Identified:   "identified_events",
	DeadLetter:   "dead_letter_events",
}

type fixture struct {
	disp    *Dispatcher
	session *mocks.MockSession
	proc    *mocks.MockProcessor
	hub     *monitor.Hub
}

func setupDispatcher(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		session: mocks.NewMockSession(ctrl),
		proc:    mocks.NewMockProcessor(ctrl),
		hub:     monitor.NewHub(16),
	}
	f.disp = New(f.session, db, f.proc, testTopics, metrics.New(), f.hub)
	return f
}

func eventMessage(t *testing.T, e *event.Event) *kafka.Message {
	t.Helper()
	b, err := codec.Encode(e)
	require.NoError(t, err)
	return &kafka.Message{Topic: testTopics.Unidentified, Key: []byte(e.ProjectID), Value: b, Offset: 42}
}

func activityKinds(h *monitor.Hub) []string {
	var kinds []string
	for _, a := range h.Since(0) {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func TestHandleEventProducesIdentifiedAndAlerts(t *testing.T) {
	f := setupDispatcher(t)
	in := &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl", Status: model.StatusFailed}
	msg := eventMessage(t, in)

	identified := &event.Event{ID: "ev-1", Kind: event.KindRunStatus, ProjectID: "p1", RunID: "run-1"}
	out := &runmanager.Outcome{
		Identified:     identified,
		RunAlerts:      []*event.RunAlert{{AlertID: "ra-1", ProjectID: "p1", Type: model.RunAlertFailed}},
		InstanceAlerts: []*event.InstanceAlert{{AlertID: "ia-1", ProjectID: "p1", Type: model.InstanceAlertIncomplete}},
	}

	var produced []*kafka.Message
	gomock.InOrder(
		f.session.EXPECT().Begin().Return(nil),
		f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, db store.DB, e *event.Event) (*runmanager.Outcome, error) {
				assert.IsType(t, &sql.Tx{}, db)
				assert.Equal(t, "etl", e.PipelineKey)
				return out, nil
			}),
		f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msgs ...*kafka.Message) error {
				produced = msgs
				return nil
			}),
		f.session.EXPECT().Commit(gomock.Any()).Return(true, nil),
	)

	require.NoError(t, f.disp.handle(context.Background(), msg))

	require.Len(t, produced, 3)
	for _, p := range produced {
		assert.Equal(t, testTopics.Identified, p.Topic)
		assert.Equal(t, []byte("p1"), p.Key)
	}
	typ, v, err := codec.Decode(produced[0].Value)
	require.NoError(t, err)
	assert.Equal(t, codec.TypeEvent, typ)
	assert.Equal(t, "run-1", v.(*event.Event).RunID)

	typ, _, err = codec.Decode(produced[1].Value)
	require.NoError(t, err)
	assert.Equal(t, codec.TypeRunAlert, typ)
	typ, _, err = codec.Decode(produced[2].Value)
	require.NoError(t, err)
	assert.Equal(t, codec.TypeInstanceAlert, typ)

	assert.Equal(t, []string{monitor.KindProcessed, monitor.KindRunAlert, monitor.KindInstAlert}, activityKinds(f.hub))
}

func TestHandleScheduledEvent(t *testing.T) {
	f := setupDispatcher(t)
	b, err := codec.Encode(&event.ScheduledEvent{
		ScheduleID:        "s1",
		ProjectID:         "p1",
		ComponentID:       "c1",
		ScheduleType:      event.ScheduleBatchStartTime,
		ScheduleTimestamp: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	msg := &kafka.Message{Topic: testTopics.Scheduled, Key: []byte("p1"), Value: b}

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().ProcessScheduled(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ store.DB, se *event.ScheduledEvent) (*runmanager.Outcome, error) {
			assert.Equal(t, "c1", se.ComponentID)
			return &runmanager.Outcome{}, nil
		})
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(nil)
	f.session.EXPECT().Commit(gomock.Any()).Return(true, nil)

	require.NoError(t, f.disp.handle(context.Background(), msg))
	assert.Equal(t, []string{monitor.KindProcessed}, activityKinds(f.hub))
}

func TestHandleDeadLetterForwardsRawMessage(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})

	var produced []*kafka.Message
	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(&runmanager.Outcome{DeadLetter: true}, nil)
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...*kafka.Message) error {
			produced = msgs
			return nil
		})
	f.session.EXPECT().Commit(gomock.Any()).Return(true, nil)

	require.NoError(t, f.disp.handle(context.Background(), msg))
	require.Len(t, produced, 1)
	assert.Equal(t, testTopics.DeadLetter, produced[0].Topic)
	assert.Equal(t, msg.Key, produced[0].Key)
	assert.Equal(t, msg.Value, produced[0].Value)
	assert.Equal(t, []string{monitor.KindDeadLetter}, activityKinds(f.hub))
}

func TestHandleUndecodableMessageIsDeadLettered(t *testing.T) {
	f := setupDispatcher(t)
	msg := &kafka.Message{Topic: testTopics.Unidentified, Value: []byte("not msgpack")}

	var produced []*kafka.Message
	f.session.EXPECT().Begin().Return(nil)
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...*kafka.Message) error {
			produced = msgs
			return nil
		})
	f.session.EXPECT().Commit(gomock.Any()).Return(true, nil)

	require.NoError(t, f.disp.handle(context.Background(), msg))
	require.Len(t, produced, 1)
	assert.Equal(t, testTopics.DeadLetter, produced[0].Topic)
}

func TestHandleAlertOnInputTopicIsDeadLettered(t *testing.T) {
	f := setupDispatcher(t)
	b, err := codec.Encode(&event.RunAlert{AlertID: "a1", ProjectID: "p1"})
	require.NoError(t, err)

	f.session.EXPECT().Begin().Return(nil)
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(nil)
	f.session.EXPECT().Commit(gomock.Any()).Return(true, nil)

	require.NoError(t, f.disp.handle(context.Background(), &kafka.Message{Topic: testTopics.Unidentified, Value: b}))
	assert.Equal(t, []string{monitor.KindDeadLetter}, activityKinds(f.hub))
}

func TestHandleSkipsOnProcessingError(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("constraint violated"))
	f.session.EXPECT().Commit(gomock.Any()).Return(true, nil)

	require.NoError(t, f.disp.handle(context.Background(), msg))
	assert.Equal(t, []string{monitor.KindSkipped}, activityKinds(f.hub))
}

func TestHandleAbortsOnConnectivityError(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("find run: %w", driver.ErrBadConn))
	f.session.EXPECT().Abort(gomock.Any()).Return(nil)

	err := f.disp.handle(context.Background(), msg)
	require.ErrorIs(t, err, driver.ErrBadConn)
	assert.Empty(t, activityKinds(f.hub))
}

func TestHandleAbortsWhenContextCancelled(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.session.EXPECT().Begin().Return(nil)
	f.session.EXPECT().Abort(gomock.Any()).
		DoAndReturn(func(abortCtx context.Context) error {
			assert.NoError(t, abortCtx.Err())
			return nil
		})

	require.Error(t, f.disp.handle(ctx, msg))
}

func TestHandleStopsWhenOutputCannotBeEncoded(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})
	out := &runmanager.Outcome{Identified: &event.Event{
		ID:        "ev-1",
		Kind:      event.KindRunStatus,
		ProjectID: "p1",
		Metadata:  map[string]any{"bad": make(chan int)},
	}}

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(out, nil)
	f.session.EXPECT().Abort(gomock.Any()).Return(nil)

	err := f.disp.handle(context.Background(), msg)
	require.ErrorIs(t, err, errEncode)
	assert.Empty(t, activityKinds(f.hub))
}

func TestStartEndsOnEncodeFailure(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})
	out := &runmanager.Outcome{RunAlerts: []*event.RunAlert{{
		AlertID:   "ra-1",
		ProjectID: "p1",
		Type:      model.RunAlertFailed,
	}}, Identified: &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", Metadata: map[string]any{"fn": func() {}}}}

	gomock.InOrder(
		f.session.EXPECT().Poll(gomock.Any()).Return([]*kafka.Message{msg, msg}, nil),
		f.session.EXPECT().Begin().Return(nil),
		f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(out, nil),
		f.session.EXPECT().Abort(gomock.Any()).Return(nil),
	)

	assert.ErrorIs(t, f.disp.Start(context.Background()), errEncode)
}

func TestHandleReturnsTransactionError(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})
	txErr := &kafka.TxError{Op: "produce", Err: errors.New("fenced")}

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(&runmanager.Outcome{}, nil)
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(txErr)

	err := f.disp.handle(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, kafka.IsTxError(err))
}

func TestHandleBeginFailureIsFatal(t *testing.T) {
	f := setupDispatcher(t)
	f.session.EXPECT().Begin().Return(&kafka.TxError{Op: "begin", Err: errors.New("not ready")})

	require.Error(t, f.disp.handle(context.Background(), &kafka.Message{Topic: testTopics.Unidentified}))
}

func TestHandleUncommittedIsRetried(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})

	f.session.EXPECT().Begin().Return(nil)
	f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(&runmanager.Outcome{}, nil)
	f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(nil)
	f.session.EXPECT().Commit(gomock.Any()).Return(false, nil)

	require.NoError(t, f.disp.handle(context.Background(), msg))
	assert.Empty(t, activityKinds(f.hub))
}

func TestStartStopsOnContextCancel(t *testing.T) {
	f := setupDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.session.EXPECT().Poll(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*kafka.Message, error) {
			cancel()
			return nil, context.Canceled
		})

	assert.ErrorIs(t, f.disp.Start(ctx), context.Canceled)
}

func TestStartReturnsNilWhenSessionClosed(t *testing.T) {
	f := setupDispatcher(t)
	f.session.EXPECT().Poll(gomock.Any()).Return(nil, kafka.ErrClosed)

	assert.NoError(t, f.disp.Start(context.Background()))
}

func TestStartProcessesUntilFatalError(t *testing.T) {
	f := setupDispatcher(t)
	msg := eventMessage(t, &event.Event{Kind: event.KindRunStatus, ProjectID: "p1", PipelineKey: "etl"})
	txErr := &kafka.TxError{Op: "commit", Err: errors.New("broker gone")}

	gomock.InOrder(
		f.session.EXPECT().Poll(gomock.Any()).Return([]*kafka.Message{msg}, nil),
		f.session.EXPECT().Begin().Return(nil),
		f.proc.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).Return(&runmanager.Outcome{}, nil),
		f.session.EXPECT().Produce(gomock.Any(), gomock.Any()).Return(nil),
		f.session.EXPECT().Commit(gomock.Any()).Return(false, txErr),
	)

	err := f.disp.Start(context.Background())
	assert.ErrorIs(t, err, txErr)
}

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"conn done", sql.ErrConnDone, true},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"pg connect", &pgconn.ConnectError{}, true},
		{"no rows", sql.ErrNoRows, false},
		{"plain", errors.New("unique constraint"), false},
		{"invalid event", runmanager.ErrInvalidEvent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectivityError(tt.err))
		})
	}
}

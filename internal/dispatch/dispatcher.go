package dispatch

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mattjoyce/runwatch/internal/codec"
	"github.com/mattjoyce/runwatch/internal/event"
	"github.com/mattjoyce/runwatch/internal/kafka"
	"github.com/mattjoyce/runwatch/internal/log"
	"github.com/mattjoyce/runwatch/internal/metrics"
	"github.com/mattjoyce/runwatch/internal/monitor"
	"github.com/mattjoyce/runwatch/internal/runmanager"
	"github.com/mattjoyce/runwatch/internal/store"
)

//go:generate mockgen -destination=mocks/mock_session.go -package=mocks github.com/mattjoyce/runwatch/internal/kafka Session
//go:generate mockgen -destination=mocks/mock_processor.go -package=mocks github.com/mattjoyce/runwatch/internal/dispatch Processor

// abortTimeout bounds the Kafka abort issued after a connectivity failure,
// which may run after ctx is already cancelled.
const abortTimeout = 10 * time.Second

// errDBCommit marks a database commit failure after records were produced.
// The Kafka transaction must not commit in that case.
var errDBCommit = errors.New("database commit failed")

// errEncode marks an output record that could not be serialized. Skipping
// would silently drop the outcome, so the loop stops instead.
var errEncode = errors.New("encode output record")

// Processor applies one decoded message inside the caller's transaction.
type Processor interface {
	Process(ctx context.Context, db store.DB, e *event.Event) (*runmanager.Outcome, error)
	ProcessScheduled(ctx context.Context, db store.DB, se *event.ScheduledEvent) (*runmanager.Outcome, error)
}

// Dispatcher consumes messages one at a time and applies each inside a
// database transaction nested in a Kafka transaction.
type Dispatcher struct {
	session kafka.Session
	db      *sql.DB
	proc    Processor
	topics  kafka.Topics
	metrics *metrics.Metrics
	hub     *monitor.Hub
	logger  *slog.Logger
}

// New creates a Dispatcher. m and hub may be nil.
func New(session kafka.Session, db *sql.DB, proc Processor, topics kafka.Topics, m *metrics.Metrics, hub *monitor.Hub) *Dispatcher {
	return &Dispatcher{
		session: session,
		db:      db,
		proc:    proc,
		topics:  topics,
		metrics: m,
		hub:     hub,
		logger:  log.WithComponent("dispatch"),
	}
}

// Start runs the consume-process-produce loop until ctx is cancelled, the
// session closes, or an error makes it unsafe to continue. A returned error
// means the process should exit and rely on redelivery after restart.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatch loop started")
	defer d.logger.Info("dispatch loop stopped")

	for {
		msgs, err := d.session.Poll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, kafka.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for _, msg := range msgs {
			if err := d.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// handle runs the transaction envelope for one message. Only errors that
// make continuing unsafe are returned; anything else is logged and the
// message is skipped by committing its offset.
func (d *Dispatcher) handle(ctx context.Context, msg *kafka.Message) error {
	started := time.Now()
	logger := log.WithRecord(d.logger, msg.Topic, msg.Partition, msg.Offset)

	if err := d.session.Begin(); err != nil {
		return err
	}

	res, err := d.process(ctx, logger, msg)
	switch {
	case err == nil:
	case kafka.IsTxError(err):
		logger.Error("kafka transaction failed", "error", err)
		return err
	case ctx.Err() != nil || isConnectivityError(err) || errors.Is(err, errDBCommit):
		logger.Error("database transaction failed; aborting without committing offset", "error", err)
		d.abort(ctx, logger)
		return err
	case errors.Is(err, errEncode):
		logger.Error("cannot serialize output records; stopping", "error", err)
		d.abort(ctx, logger)
		return err
	default:
		logger.Error("failed to process message; skipping", "error", err)
		res = &processed{outcome: metrics.OutcomeSkipped}
	}

	committed, err := d.session.Commit(ctx)
	if err != nil {
		logger.Error("kafka commit failed", "error", err)
		return err
	}
	if !committed {
		logger.Warn("transaction not committed after rebalance; message will be redelivered")
		d.metrics.Uncommitted()
		d.metrics.Message(msg.Topic, metrics.OutcomeRetried, time.Since(started))
		return nil
	}

	d.metrics.Message(msg.Topic, res.outcome, time.Since(started))
	d.publish(msg, res)
	return nil
}

func (d *Dispatcher) abort(ctx context.Context, logger *slog.Logger) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := d.session.Abort(abortCtx); err != nil {
		logger.Error("kafka abort failed", "error", err)
	}
}

// processed is what one message produced once its transactions succeed.
type processed struct {
	outcome string
	result  *runmanager.Outcome
}

// process applies msg on a fresh pooled connection, produces the resulting
// records and commits the database transaction. The Kafka transaction is
// left for the caller to commit.
func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, msg *kafka.Message) (*processed, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out, err := d.apply(ctx, logger, tx, msg)
	if err != nil {
		return nil, err
	}

	res := &processed{outcome: metrics.OutcomeProcessed, result: out}
	var records []*kafka.Message
	if out.DeadLetter {
		res.outcome = metrics.OutcomeDeadLetter
		records = []*kafka.Message{{Topic: d.topics.DeadLetter, Key: msg.Key, Value: msg.Value}}
	} else {
		records, err = d.records(out)
		if err != nil {
			return nil, err
		}
	}

	if err := d.session.Produce(ctx, records...); err != nil {
		return nil, err
	}
	// The database commits before Kafka so a failed Kafka commit only leads
	// to redelivery, which processing tolerates.
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", errDBCommit, err)
	}
	return res, nil
}

// apply decodes msg and hands it to the processor. Messages that cannot be
// decoded, or whose type is not consumed here, are dead-lettered.
func (d *Dispatcher) apply(ctx context.Context, logger *slog.Logger, tx *sql.Tx, msg *kafka.Message) (*runmanager.Outcome, error) {
	typ, v, err := codec.Decode(msg.Value)
	if err != nil {
		logger.Warn("undecodable message; dead-lettering", "error", err)
		return &runmanager.Outcome{DeadLetter: true}, nil
	}

	switch m := v.(type) {
	case *event.Event:
		if m.ID != "" {
			logger = logger.With("event_id", m.ID)
		}
		logger.Debug("processing event", "kind", m.Kind)
		return d.proc.Process(ctx, tx, m)
	case *event.ScheduledEvent:
		logger.Debug("processing scheduled event", "schedule_id", m.ScheduleID, "schedule_type", m.ScheduleType)
		return d.proc.ProcessScheduled(ctx, tx, m)
	default:
		logger.Warn("unexpected message type; dead-lettering", "type", typ)
		return &runmanager.Outcome{DeadLetter: true}, nil
	}
}

// records encodes the identified event and alerts for the identified topic,
// keyed by project so they stay ordered per project.
func (d *Dispatcher) records(out *runmanager.Outcome) ([]*kafka.Message, error) {
	var records []*kafka.Message
	add := func(key string, v any) error {
		b, err := codec.Encode(v)
		if err != nil {
			return fmt.Errorf("%w: %w", errEncode, err)
		}
		records = append(records, &kafka.Message{Topic: d.topics.Identified, Key: []byte(key), Value: b})
		return nil
	}

	if out.Identified != nil {
		if err := add(out.Identified.PartitionKey(), out.Identified); err != nil {
			return nil, err
		}
	}
	for _, a := range out.RunAlerts {
		if err := add(a.ProjectID, a); err != nil {
			return nil, err
		}
	}
	for _, a := range out.InstanceAlerts {
		if err := add(a.ProjectID, a); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (d *Dispatcher) publish(msg *kafka.Message, res *processed) {
	ref := map[string]any{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}
	switch res.outcome {
	case metrics.OutcomeDeadLetter:
		d.hub.Publish(monitor.KindDeadLetter, ref)
		return
	case metrics.OutcomeSkipped:
		d.hub.Publish(monitor.KindSkipped, ref)
		return
	}

	out := res.result
	if out.Identified != nil {
		ref["event_id"] = out.Identified.ID
		ref["kind"] = out.Identified.Kind
		ref["run_id"] = out.Identified.RunID
	}
	d.hub.Publish(monitor.KindProcessed, ref)
	for _, a := range out.RunAlerts {
		d.metrics.Alert("run", string(a.Type))
		d.hub.Publish(monitor.KindRunAlert, a)
	}
	for _, a := range out.InstanceAlerts {
		d.metrics.Alert("instance", string(a.Type))
		d.hub.Publish(monitor.KindInstAlert, a)
	}
}

// isConnectivityError reports whether err means the database could not be
// reached, as opposed to a problem with the message itself.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

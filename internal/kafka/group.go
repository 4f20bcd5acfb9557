package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mattjoyce/runwatch/internal/log"
)

// GroupSession is a Session backed by a franz-go group transact session.
type GroupSession struct {
	sess   *kgo.GroupTransactSession
	logger *slog.Logger
}

// NewGroupSession joins the consumer group and prepares the transactional
// producer. Offsets are only ever committed inside transactions and only
// committed records are read.
func NewGroupSession(cfg Config) (*GroupSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.InputTopics()...),
		kgo.TransactionalID(cfg.TransactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TransactionTimeout > 0 {
		opts = append(opts, kgo.TransactionTimeout(cfg.TransactionTimeout))
	}

	sess, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka session: %w", err)
	}
	return &GroupSession{sess: sess, logger: log.WithComponent("kafka")}, nil
}

// Poll blocks until at least one record is available and returns a single
// record, keeping one message per transaction.
func (s *GroupSession) Poll(ctx context.Context) ([]*Message, error) {
	fetches := s.sess.PollRecords(ctx, 1)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
			return nil, fe.Err
		}
		return nil, fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
	}

	var out []*Message
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, fromRecord(r))
	})
	return out, nil
}

func (s *GroupSession) Begin() error {
	if err := s.sess.Begin(); err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	return nil
}

// Produce writes msgs inside the open transaction and waits for the
// brokers to acknowledge them.
func (s *GroupSession) Produce(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, toRecord(m))
	}
	if err := s.sess.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return &TxError{Op: "produce", Err: err}
	}
	return nil
}

// Commit ends the transaction, committing produced records and consumed
// offsets together. It reports false when the group rebalanced and the
// transaction was aborted instead; the records will be redelivered.
func (s *GroupSession) Commit(ctx context.Context) (bool, error) {
	committed, err := s.sess.End(ctx, kgo.TryCommit)
	if err != nil {
		return false, &TxError{Op: "commit", Err: err}
	}
	return committed, nil
}

func (s *GroupSession) Abort(ctx context.Context) error {
	if _, err := s.sess.End(ctx, kgo.TryAbort); err != nil {
		return &TxError{Op: "abort", Err: err}
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (s *GroupSession) Ping(ctx context.Context) error {
	return s.sess.Client().Ping(ctx)
}

func (s *GroupSession) Close() {
	s.sess.Close()
	s.logger.Info("kafka session closed")
}

func fromRecord(r *kgo.Record) *Message {
	return &Message{
		Topic:     r.Topic,
		Key:       r.Key,
		Value:     r.Value,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp,
	}
}

func toRecord(m *Message) *kgo.Record {
	return &kgo.Record{
		Topic: m.Topic,
		Key:   m.Key,
		Value: m.Value,
	}
}

// Package kafka wraps the transactional consumer-producer the run manager
// uses to read lifecycle events and emit identified events and alerts.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Poll once the session has been closed.
var ErrClosed = errors.New("kafka session closed")

// Message is one record consumed from or produced to a topic.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Session is a consume-transform-produce transaction scope. Records
// produced between Begin and Commit are published atomically with the
// consumed offsets; Abort discards both and rewinds the consumer.
type Session interface {
	Poll(ctx context.Context) ([]*Message, error)
	Begin() error
	Produce(ctx context.Context, msgs ...*Message) error
	Commit(ctx context.Context) (bool, error)
	Abort(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// TxError marks a failure of the Kafka transaction itself. The consumer
// cannot safely continue after one.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("kafka transaction %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// IsTxError reports whether err wraps a *TxError.
func IsTxError(err error) bool {
	var te *TxError
	return errors.As(err, &te)
}

// Topics names the topics the service reads and writes.
type Topics struct {
	Unidentified string
	Scheduled    string
	Identified   string
	DeadLetter   string
}

// Config configures a GroupSession.
type Config struct {
	Brokers            []string
	ClientID           string
	GroupID            string
	TransactionalID    string
	TransactionTimeout time.Duration
	Topics             Topics
}

// Validate checks that the session can be built from c.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.GroupID == "" {
		return errors.New("kafka group_id is required")
	}
	if c.TransactionalID == "" {
		return errors.New("kafka transactional_id is required")
	}
	if c.Topics.Unidentified == "" || c.Topics.Identified == "" || c.Topics.DeadLetter == "" {
		return errors.New("kafka topics unidentified, identified and dead_letter are required")
	}
	return nil
}

// InputTopics lists the topics consumed by the service.
func (c Config) InputTopics() []string {
	topics := []string{c.Topics.Unidentified}
	if c.Topics.Scheduled != "" {
		topics = append(topics, c.Topics.Scheduled)
	}
	return topics
}

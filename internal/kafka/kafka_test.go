package kafka

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func validConfig() Config {
	return Config{
		Brokers:         []string{"localhost:9092"},
		GroupID:         "runwatch",
		TransactionalID: "runwatch-0",
		Topics: Topics{
			Unidentified: "unidentified_events",
			Scheduled:    "scheduled_events",
			Identified:   "identified_events",
			DeadLetter:   "dead_letter",
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no brokers", mutate: func(c *Config) { c.Brokers = nil }, wantErr: "brokers"},
		{name: "no group", mutate: func(c *Config) { c.GroupID = "" }, wantErr: "group_id"},
		{name: "no transactional id", mutate: func(c *Config) { c.TransactionalID = "" }, wantErr: "transactional_id"},
		{name: "no dead letter topic", mutate: func(c *Config) { c.Topics.DeadLetter = "" }, wantErr: "topics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInputTopics(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, []string{"unidentified_events", "scheduled_events"}, cfg.InputTopics())

	cfg.Topics.Scheduled = ""
	assert.Equal(t, []string{"unidentified_events"}, cfg.InputTopics())
}

func TestTxErrorClassification(t *testing.T) {
	cause := errors.New("producer fenced")
	err := fmt.Errorf("process: %w", &TxError{Op: "commit", Err: cause})

	assert.True(t, IsTxError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "kafka transaction commit: producer fenced")
	assert.False(t, IsTxError(cause))
	assert.False(t, IsTxError(nil))
}

func TestRecordConversion(t *testing.T) {
	ts := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	m := fromRecord(&kgo.Record{
		Topic:     "unidentified_events",
		Key:       []byte("proj"),
		Value:     []byte{0x81},
		Partition: 3,
		Offset:    42,
		Timestamp: ts,
	})
	assert.Equal(t, &Message{
		Topic:     "unidentified_events",
		Key:       []byte("proj"),
		Value:     []byte{0x81},
		Partition: 3,
		Offset:    42,
		Timestamp: ts,
	}, m)

	r := toRecord(&Message{Topic: "identified_events", Key: []byte("proj"), Value: []byte{0x1}})
	assert.Equal(t, "identified_events", r.Topic)
	assert.Equal(t, []byte("proj"), r.Key)
	assert.Equal(t, []byte{0x1}, r.Value)
}

func TestNewGroupSessionRejectsInvalidConfig(t *testing.T) {
	_, err := NewGroupSession(Config{})
	assert.Error(t, err)
}

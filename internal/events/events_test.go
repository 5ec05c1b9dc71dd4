package events

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/swaply-api/internal/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafka(w)

	tradeID, actor := uuid.New(), uuid.New()
	e := New(TradeAccepted, tradeID, actor, map[string]string{"status": "accepted"})
	p.Publish(context.Background(), e)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, tradeID.String(), string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, TradeAccepted, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, actor, decoded.ActorID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishFailureIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafka(w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		p.Publish(ctx, New(MessageSent, uuid.New(), uuid.New(), nil))
	})
	assert.Empty(t, w.msgs)
}

func TestNewPublisher(t *testing.T) {
	assert.IsType(t, Nop{}, NewPublisher(config.KafkaConfig{}))

	p := NewPublisher(config.KafkaConfig{Brokers: "localhost:9092", Topic: "swaply.events"})
	require.IsType(t, &Kafka{}, p)
	w, ok := p.(*Kafka).w.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async, "publishing stays off the request path")
	assert.NotNil(t, w.Completion)
	assert.NoError(t, p.Close())
}

func TestLogCompletion(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	done := logCompletion(logrus.NewEntry(log))

	msg := kafka.Message{Key: []byte("agg-1"), Headers: []kafka.Header{{Key: "type", Value: []byte(TradeAccepted)}}}
	done([]kafka.Message{msg}, errors.New("broker down"))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, TradeAccepted, hook.LastEntry().Data["event"])
	assert.Equal(t, "agg-1", hook.LastEntry().Data["aggregate_id"])

	done([]kafka.Message{msg}, nil)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	r.Publish(context.Background(), New(TradeProposed, uuid.New(), uuid.New(), nil))
	r.Publish(context.Background(), New(TradeCanceled, uuid.New(), uuid.New(), nil))
	assert.Equal(t, []string{TradeProposed, TradeCanceled}, r.Types())
	assert.Len(t, r.Events(), 2)
}

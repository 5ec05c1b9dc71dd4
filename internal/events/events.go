// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/rajivgeraev/swaply-api/internal/config"
	"github.com/rajivgeraev/swaply-api/internal/logger"
)

// Event types
const (
	TradeProposed  = "trade.proposed"
	TradeAccepted  = "trade.accepted"
	TradeRejected  = "trade.rejected"
	TradeCanceled  = "trade.canceled"
	TradeCompleted = "trade.completed"
	RatingCreated  = "rating.created"
	MessageSent    = "message.sent"
)

const publishTimeout = 3 * time.Second

// Event is one fact about an aggregate
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	AggregateID uuid.UUID `json:"aggregate_id"`
	ActorID     uuid.UUID `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data,omitempty"`
}

// New builds an event stamped with a fresh id and the current time
func New(typ string, aggregateID, actorID uuid.UUID, data any) Event {
	return Event{
		ID:          uuid.New(),
		Type:        typ,
		AggregateID: aggregateID,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

// Publisher delivers events. Failures are logged and never returned.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are configured
func NewPublisher(cfg config.KafkaConfig) Publisher {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafka(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logCompletion(logger.Default()),
	})
}

// logCompletion reports the outcome of an async batch; the request that
// published it has usually finished by then
func logCompletion(log *logrus.Entry) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		for _, m := range msgs {
			entry := log.WithField("aggregate_id", string(m.Key))
			for _, h := range m.Headers {
				if h.Key == "type" {
					entry = entry.WithField("event", string(h.Value))
				}
			}
			if err != nil {
				entry.WithError(err).Warn("publish event")
				continue
			}
			entry.Debug("event published")
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events keyed by aggregate id, so one trade's events stay
// ordered. With an async writer Publish only enqueues; delivery errors reach
// the writer's Completion.
type Kafka struct {
	w messageWriter
}

// NewKafka wraps a kafka writer
func NewKafka(w messageWriter) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) Publish(ctx context.Context, e Event) {
	log := logger.FromContext(ctx).WithField("event", e.Type).WithField("aggregate_id", e.AggregateID)

	value, err := json.Marshal(e)
	if err != nil {
		log.WithError(err).Error("encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AggregateID.String()),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		log.WithError(err).Warn("publish event")
	}
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Close() error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of the published events in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

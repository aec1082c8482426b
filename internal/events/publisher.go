// Package events delivers change events to downstream consumers. Delivery
// is after the fact: a committed mutation is never rolled back because a
// publisher failed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/rpattn/metacat/internal/domain"
)

// Sink receives one change event per successful mutation.
type Sink interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// Message headers carried on every published record.
const (
	headerEventType  = "event_type"
	headerEntityType = "entity_type"
)

// KafkaPublisher sends change events to one topic, keyed by the entity's
// fully-qualified name so all events for an entity land on one partition
// in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

// NewKafkaPublisher connects a synchronous producer with full acks.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic, log: log}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.FullyQualifiedName),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(event.EventType)},
			{Key: []byte(headerEntityType), Value: []byte(event.EntityType)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return domain.NewExternalDependency(err, "failed to publish %s for %s",
			event.EventType, event.FullyQualifiedName)
	}
	p.log.Debug("published change event",
		"eventType", event.EventType, "fqn", event.FullyQualifiedName,
		"partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogSink writes events to the structured log, used when no broker is
// configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, event domain.ChangeEvent) error {
	s.log.Info("change event",
		"eventType", event.EventType,
		"entityType", event.EntityType,
		"fqn", event.FullyQualifiedName,
		"previousVersion", event.PreviousVersion,
		"currentVersion", event.CurrentVersion,
		"user", event.UserName)
	return nil
}

// Fanout delivers each event to every sink, collecting failures instead of
// short-circuiting.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Publish(ctx context.Context, event domain.ChangeEvent) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

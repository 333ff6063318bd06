// Package stream mirrors stored activity events onto a Kafka topic for
// downstream consumers. Mirroring is best effort; the store stays the
// system of record.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"tasktrail/pkg/activity"
)

// DefaultTopic receives mirrored events when no topic is configured.
const DefaultTopic = "activity-events"

// Kafka produces each event keyed by actor so one actor's events share a
// partition.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	onError func()
}

// Config for the Kafka mirror.
type Config struct {
	Brokers []string
	Topic   string
	// MaxBufferedRecords caps records awaiting delivery; zero keeps the
	// client default. Publish drops new records once the cap is reached.
	MaxBufferedRecords int
}

func NewKafka(cfg Config, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}
	if cfg.MaxBufferedRecords > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(cfg.MaxBufferedRecords))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

// OnError registers a callback invoked for every failed delivery.
func (k *Kafka) OnError(fn func()) { k.onError = fn }

func (k *Kafka) Topic() string { return k.topic }

// EnsureTopic creates the topic if it does not already exist.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(k.client)
	resps, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Publish enqueues ev for delivery and returns without waiting for the ack.
// A full producer buffer fails the record at once (kgo.ErrMaxBuffered) so a
// down broker never holds up ingestion.
func (k *Kafka) Publish(ctx context.Context, ev activity.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(ev.ActorID),
		Value: value,
	}
	k.client.TryProduce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		if k.onError != nil {
			k.onError()
		}
		k.logger.Warn("failed to mirror activity event",
			"topic", r.Topic,
			"event_id", ev.ID,
			"error", err,
		)
	})
	return nil
}

// Close flushes buffered records, bounded by ctx, and closes the client.
func (k *Kafka) Close(ctx context.Context) error {
	defer k.client.Close()
	if err := k.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	return nil
}

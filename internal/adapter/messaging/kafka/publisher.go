package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pixwallet/internal/core/domain"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PublisherMetrics counts publish attempts per topic.
type PublisherMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

// NewPublisherMetrics creates and registers the publisher metrics.
func NewPublisherMetrics(registry prometheus.Registerer) *PublisherMetrics {
	m := &PublisherMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_total",
				Help: "Total Kafka publish attempts.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_latency_seconds",
				Help:    "Kafka publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

// Publisher implements ports.EventPublisher over a sarama SyncProducer.
// Events are keyed by owner so one owner's events stay ordered.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *PublisherMetrics
	log      zerolog.Logger
}

// NewConfig returns the producer settings used for wallet events.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// NewPublisher dials brokers and returns a publisher for topic.
func NewPublisher(brokers []string, topic string, metrics *PublisherMetrics, log zerolog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka producer connected")
	return NewPublisherWithProducer(producer, topic, metrics, log), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, metrics *PublisherMetrics, log zerolog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		metrics:  metrics,
		log:      log,
	}
}

// Publish sends event as JSON.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OwnerID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		},
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.PublishTotal.WithLabelValues(p.topic, status).Inc()
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Str("event", string(event.Type)).Msg("kafka publish failed")
		return fmt.Errorf("kafka publish failed: %w", err)
	}

	p.log.Debug().
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("event", string(event.Type)).
		Msg("event published")
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// Package events publishes dialogue and order events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/metrics"
	"voice-order-service/internal/schema"
)

// Publisher publishes turn and order events to separate Kafka topics.
type Publisher struct {
	writerTurns  *kafka.Writer
	writerOrders *kafka.Writer
	principal    string
	topicTurns   string
	topicOrders  string
	enabled      bool
	metrics      *metrics.Metrics
	validator    *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers     []string
	TopicTurns  string
	TopicOrders string
	Principal   string
	Enabled     bool
}

// New creates a Kafka event publisher. With Kafka disabled events are
// only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New(0, 0)

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m, validator: v}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:   cfg.Principal,
			topicTurns:  cfg.TopicTurns,
			topicOrders: cfg.TopicOrders,
			metrics:     m,
			validator:   v,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurns", cfg.TopicTurns).
		Str("topicOrders", cfg.TopicOrders).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTurns:  newWriter(cfg.TopicTurns),
		writerOrders: newWriter(cfg.TopicOrders),
		principal:    cfg.Principal,
		topicTurns:   cfg.TopicTurns,
		topicOrders:  cfg.TopicOrders,
		enabled:      true,
		metrics:      m,
		validator:    v,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

// PublishTurn publishes a turn event keyed by session, so a session's
// turns stay ordered within one partition.
func (p *Publisher) PublishTurn(ctx context.Context, event models.TurnCompleted) error {
	if event.EventType == "" {
		event.EventType = "dialogue.turn.completed"
	}
	if err := p.validate(p.topicTurns, event.EventType, event); err != nil {
		return err
	}
	return p.publish(ctx, p.writerTurns, p.topicTurns, event.EventType, event.SessionID, event)
}

// PublishOrder publishes an order event keyed by restaurant.
func (p *Publisher) PublishOrder(ctx context.Context, event models.OrderCreated) error {
	if event.EventType == "" {
		event.EventType = "order.created"
	}
	if err := p.validate(p.topicOrders, event.EventType, event); err != nil {
		return err
	}
	return p.publish(ctx, p.writerOrders, p.topicOrders, event.EventType, event.RestaurantID, event)
}

// validate drops malformed events before they reach a topic.
func (p *Publisher) validate(topic, eventType string, event any) error {
	if p.validator == nil {
		return nil
	}
	if err := p.validator.Validate(event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Str("eventType", eventType).Msg("Dropping invalid event")
		p.metrics.RecordKafkaPublish(topic, eventType, err, 0)
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	if p.writerOrders != nil {
		if e := p.writerOrders.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing orders writer")
			err = e
		}
	}
	return err
}

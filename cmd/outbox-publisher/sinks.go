package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
)

// Message is an outbox row as every sink delivers it. Key is the aggregate
// id so consumers see one order's events in order where the sink supports it.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

func newMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) Message {
	return Message{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

type sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// newSink builds the sink named by ORDERFLOW_OUTBOX_SINK.
func newSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, error) {
	switch strings.ToLower(cfg.Outbox.Sink) {
	case config.OutboxSinkPubSub:
		pub, err := pubsub.NewPublisher(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return &pubsubSink{pub: pub}, nil
	case config.OutboxSinkKafka:
		brokers := cfg.Kafka.BrokerList()
		if len(brokers) == 0 {
			return nil, errors.New("kafka brokers are required for the kafka sink")
		}
		return newKafkaSink(&kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}), nil
	case config.OutboxSinkLog:
		return &logSink{logg: logg}, nil
	default:
		return nil, fmt.Errorf("unknown outbox sink %q", cfg.Outbox.Sink)
	}
}

type pubsubSink struct {
	pub *pubsub.Publisher
}

func (p *pubsubSink) Name() string { return config.OutboxSinkPubSub }

func (p *pubsubSink) Publish(ctx context.Context, msg Message) error {
	_, err := p.pub.Publish(ctx, msg.Data, msg.Attributes)
	return err
}

func (p *pubsubSink) Close() error { return p.pub.Close() }

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaSink writes synchronously: a row is only marked published once every
// in-sync replica has it.
type kafkaSink struct {
	w kafkaWriter
}

func newKafkaSink(w kafkaWriter) *kafkaSink {
	return &kafkaSink{w: w}
}

func (k *kafkaSink) Name() string { return config.OutboxSinkKafka }

func (k *kafkaSink) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for key, value := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

func (k *kafkaSink) Close() error { return k.w.Close() }

// logSink is for local runs without a broker.
type logSink struct {
	logg *logger.Logger
}

func (l *logSink) Name() string { return config.OutboxSinkLog }

func (l *logSink) Publish(ctx context.Context, msg Message) error {
	fields := make(map[string]any, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		fields[k] = v
	}
	fields["payload_bytes"] = len(msg.Data)
	l.logg.Info(l.logg.WithFields(ctx, fields), "outbox event")
	return nil
}

func (l *logSink) Close() error { return nil }

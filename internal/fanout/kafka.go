package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fleettrack/internal/core/model"
	"fleettrack/internal/log"

	"github.com/segmentio/kafka-go"
)

// KafkaOptions configures the Kafka sink.
type KafkaOptions struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher writes every event to one topic, keyed by device id so a
// device's events stay in one partition. Writes are asynchronous; failures are
// only logged.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger log.Logger
}

var _ Sink = (*KafkaPublisher)(nil)

func NewKafkaPublisher(opts KafkaOptions, logger log.Logger) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 || opts.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error(err, "Kafka write failed", "messages", len(messages))
			}
		},
	}

	logger.Info("Kafka publisher ready", "brokers", strings.Join(opts.Brokers, ","), "topic", opts.Topic)
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func kafkaMessage(event model.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(event.Channel())},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.Event) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

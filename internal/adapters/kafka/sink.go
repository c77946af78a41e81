package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Sink publishes finished build records to a Kafka topic.
type Sink struct {
	producer *kafka.Producer
	topic    string
	logger   logrus.FieldLogger
}

func NewSink(bootstrapServers, topic string, logger logrus.FieldLogger) (*Sink, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &Sink{producer: p, topic: topic, logger: logger}, nil
}

// PublishResult produces rec keyed by build ID and waits for the delivery report.
func (s *Sink) PublishResult(ctx context.Context, rec domain.ResultRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(rec.BuildID),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce result: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event: %v", ev)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("failed to deliver result: %w", msg.TopicPartition.Error)
		}
		s.logger.WithField("build", rec.BuildID).Debugf("result delivered to %s", s.topic)
		return nil
	}
}

// Close flushes outstanding messages for up to five seconds.
func (s *Sink) Close() {
	if left := s.producer.Flush(5000); left > 0 {
		s.logger.Warnf("%d kafka message(s) not delivered", left)
	}
	s.producer.Close()
}

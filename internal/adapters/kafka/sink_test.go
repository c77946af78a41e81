package kafka

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/core/domain"
)

func TestSinkPublishResult(t *testing.T) {
	cluster, err := kafka.NewMockCluster(1)
	require.NoError(t, err)
	defer cluster.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sink, err := NewSink(cluster.BootstrapServers(), "build-completions", logger)
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rec := domain.ResultRecord{BuildID: "b1", Name: "acme/app", Tag: "v1.0", Status: true, ID: "4dc1a5e7b2f0"}
	require.NoError(t, sink.PublishResult(ctx, rec))

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cluster.BootstrapServers(),
		"group.id":          "sink-test",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe("build-completions", nil))

	msg, err := consumer.ReadMessage(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b1", string(msg.Key))

	var got domain.ResultRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, rec, got)
}

func TestSinkPublishCancelled(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// nothing listens here, so delivery never completes
	sink, err := NewSink("127.0.0.1:1", "build-completions", logger)
	require.NoError(t, err)
	defer sink.producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = sink.PublishResult(ctx, domain.ResultRecord{BuildID: "b1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

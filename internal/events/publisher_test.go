package events

import (
	"context"
	"testing"

	"github.com/dujiao-next/bookshop/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	pub := NewPublisher(config.KafkaConfig{Enabled: true})
	_, ok := pub.(NoopPublisher)
	assert.True(t, ok, "no brokers should yield noop publisher")
	require.NoError(t, pub.Publish(context.Background(), StreamStock, "1", NewEvent("stock.changed", nil)))
}

func TestKafkaPublisherTopics(t *testing.T) {
	pub := NewKafkaPublisher(config.KafkaConfig{Enabled: true, Brokers: []string{"127.0.0.1:9092"}, OrderTopic: "orders-v2"})
	defer pub.Close()

	require.Contains(t, pub.writers, StreamStock)
	assert.Equal(t, "bookshop.stock", pub.writers[StreamStock].Topic)
	assert.Equal(t, "orders-v2", pub.writers[StreamOrder].Topic)

	err := pub.Publish(context.Background(), Stream("unknown"), "k", NewEvent("x", nil))
	assert.Error(t, err)
}

func TestNewEventStampsIDAndTime(t *testing.T) {
	event := NewEvent("order.paid", map[string]string{"order_no": "BK1"})
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, "order.paid", event.Type)
}

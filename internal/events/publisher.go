package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Stream 事件流（对应一个 Kafka topic）
type Stream string

// 事件流
const (
	StreamStock Stream = "stock"
	StreamOrder Stream = "order"
)

// Event 领域事件信封
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// NewEvent 创建事件
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, stream Stream, key string, event Event) error
	Close() error
}

// NewPublisher Kafka 启用时返回 Kafka 发布器，否则返回空实现
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}

// KafkaPublisher Kafka 发布器
type KafkaPublisher struct {
	writers map[Stream]*kafka.Writer
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	topics := map[Stream]string{
		StreamStock: fallbackTopic(cfg.StockTopic, "bookshop.stock"),
		StreamOrder: fallbackTopic(cfg.OrderTopic, "bookshop.orders"),
	}
	writers := make(map[Stream]*kafka.Writer, len(topics))
	for stream, topic := range topics {
		writers[stream] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return &KafkaPublisher{writers: writers}
}

func fallbackTopic(topic, fallback string) string {
	if trimmed := strings.TrimSpace(topic); trimmed != "" {
		return trimmed
	}
	return fallback
}

// Publish 以 JSON 写入对应 topic，key 决定分区（同一商品/订单保持有序）
func (p *KafkaPublisher) Publish(ctx context.Context, stream Stream, key string, event Event) error {
	writer, ok := p.writers[stream]
	if !ok {
		return errors.New("unknown event stream: " + string(stream))
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.OccurredAt,
	})
}

// Close 关闭所有 writer
func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopPublisher 未启用事件流时使用
type NoopPublisher struct{}

// Publish 丢弃事件
func (NoopPublisher) Publish(context.Context, Stream, string, Event) error { return nil }

// Close 无操作
func (NoopPublisher) Close() error { return nil }

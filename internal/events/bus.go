// Package events mirrors processed transactions onto Kafka for
// downstream consumers (fraud-ops dashboards, SIEM ingestion). It is a
// pure side channel: nothing in the scoring path ever reads from it.
// Grounded on the teacher's internal/events/bus.go KafkaEventBus,
// narrowed from a generic multi-topic bus to the single topic this
// domain needs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// TopicTransactions is the one topic the fraud engine publishes to.
const TopicTransactions = "risk.transactions"

// KafkaConfig configures the underlying writer.
type KafkaConfig struct {
	Brokers         []string
	ClientID        string
	BatchSize       int
	BatchTimeout    time.Duration
	CompressionType string
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		ClientID:        "fraudmesh-events",
		BatchSize:       100,
		BatchTimeout:    10 * time.Millisecond,
		CompressionType: "gzip",
	}
}

// KafkaPublisher implements risk.EventPublisher over segmentio/kafka-go.
type KafkaPublisher struct {
	writer  *kafka.Writer
	brokers []string
}

func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  TopicTransactions,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		Compression:            parseCompression(cfg.CompressionType),
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, brokers: cfg.Brokers}
}

func parseCompression(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Publish writes one transaction record to the mirror topic, keyed by
// user_id so a downstream consumer can partition by user.
func (p *KafkaPublisher) Publish(ctx context.Context, rec risk.TransactionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transaction record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "transaction_id", Value: []byte(rec.TransactionID)},
			{Key: "timestamp", Value: []byte(rec.Timestamp.Format(time.RFC3339))},
		},
		Time: time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Ping checks broker connectivity, used by the health endpoint.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()
	_, err = conn.Controller()
	return err
}

package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
)

const (
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

func init() {
	Register("kafka", func(conf config.SinkConf) (Sink, error) {
		return NewKafkaSink(DefaultKafkaConfig(conf.Brokers))
	})
}

// KafkaSink writes events to Kafka, partitioned by event id.
type KafkaSink struct {
	writer *kafka.Writer
}

// KafkaConfig holds configuration for KafkaSink.
type KafkaConfig struct {
	Brokers      []string
	BatchSize    int
	BatchBytes   int64
	RequiredAcks kafka.RequiredAcks
}

// DefaultKafkaConfig returns a KafkaConfig that waits for all replicas.
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:      brokers,
		BatchSize:    DefaultKafkaBatchSize,
		BatchBytes:   DefaultKafkaBatchBytes,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaSink creates a synchronous writer. Topics are created on first use.
func NewKafkaSink(conf KafkaConfig) (*KafkaSink, error) {
	if len(conf.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if conf.BatchSize == 0 {
		conf.BatchSize = DefaultKafkaBatchSize
	}
	if conf.BatchBytes == 0 {
		conf.BatchBytes = DefaultKafkaBatchBytes
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(conf.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              conf.BatchSize,
		BatchBytes:             conf.BatchBytes,
		RequiredAcks:           conf.RequiredAcks,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (k *KafkaSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

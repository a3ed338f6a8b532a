package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

type producerConfig struct {
	brokers      []string
	acks         kafka.RequiredAcks
	compression  string
	writeTimeout time.Duration
	keyed        bool
}

// ProducerOption configures Producer.
type ProducerOption func(*producerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *producerConfig) { c.brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4, zstd or none.
func WithCompression(codec string) ProducerOption {
	return func(c *producerConfig) { c.compression = codec }
}

// WithRequiredAcks sets the acknowledgements a write waits for; -1 means
// every in-sync replica.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *producerConfig) { c.acks = kafka.RequiredAcks(acks) }
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *producerConfig) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithHashByKey routes equal keys to one partition, keeping the events of
// one ticker ordered.
func WithHashByKey(keyed bool) ProducerOption {
	return func(c *producerConfig) { c.keyed = keyed }
}

// Producer writes JSON events synchronously.
type Producer struct {
	writer *kafka.Writer
	codec  string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := producerConfig{
		acks:         kafka.RequireAll,
		compression:  "gzip",
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.keyed {
		balancer = &kafka.Hash{}
	}
	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.brokers...),
			Balancer:     balancer,
			RequiredAcks: cfg.acks,
			Compression:  compressionCodec(cfg.compression),
			WriteTimeout: cfg.writeTimeout,
			// events are rare, so do not wait to fill a batch
			BatchTimeout: 50 * time.Millisecond,
		},
		codec: cfg.compression,
	}, nil
}

// Publish encodes value and writes it under key. []byte and string values
// are written as they are.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	body, err := encodeValue(value)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: body, Time: start})

	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Inc()
	producerBytes.WithLabelValues(topic, p.codec).Add(float64(len(body)))
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	}
	return kafka.Gzip
}

var (
	producerMetricsOnce sync.Once
	producerMessages    *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockcast_kafka_events_total",
		Help: "Events written to Kafka by result",
	}, []string{"topic", "result"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockcast_kafka_event_bytes_total",
		Help: "Encoded event bytes written to Kafka",
	}, []string{"topic", "compression"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockcast_kafka_write_seconds",
		Help:    "Kafka write latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}

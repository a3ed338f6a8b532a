package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"StockCast/pkg/logger"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the messages of one topic. A returned error is
// retried with backoff before the message is given up.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type consumerConfig struct {
	brokers     []string
	groupID     string
	startOffset int64
	retries     int
	minDelay    time.Duration
	maxDelay    time.Duration
	dlqTopic    string
	log         *logger.Logger
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*consumerConfig)

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *consumerConfig) { c.brokers = brokers }
}

func WithConsumerGroupID(id string) ConsumerOption {
	return func(c *consumerConfig) { c.groupID = id }
}

// WithConsumerFromLatest makes a group without committed offsets start at the
// end of each partition instead of replaying it.
func WithConsumerFromLatest() ConsumerOption {
	return func(c *consumerConfig) { c.startOffset = kafka.LastOffset }
}

// InstanceGroupID names a consumer group owned by this process alone, so
// every instance receives every message instead of sharing partitions.
// The suffix is the hostname, or a random id when it cannot be read.
func InstanceGroupID(prefix string, hostname func() (string, error)) string {
	if hostname != nil {
		if h, err := hostname(); err == nil && h != "" {
			return prefix + "-" + h
		}
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// WithConsumerRetry sets how often a failing message is retried and the
// backoff between attempts.
func WithConsumerRetry(retries int, minDelay, maxDelay time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.retries, c.minDelay, c.maxDelay = retries, minDelay, maxDelay
	}
}

// WithConsumerDLQ names the topic for messages that keep failing. Without
// it such messages are logged and skipped.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *consumerConfig) { c.dlqTopic = topic }
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *consumerConfig) { c.log = l }
}

// Consumer runs one reader per registered topic. Each reader handles its
// messages one at a time, so offsets commit in order.
type Consumer struct {
	cfg      consumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	dlq      *kafka.Writer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := consumerConfig{
		groupID:     "stockcast",
		startOffset: kafka.FirstOffset,
		retries:     3,
		minDelay:    100 * time.Millisecond,
		maxDelay:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.log == nil {
		cfg.log = logger.Nop()
	}
	consumerMetricsOnce.Do(registerConsumerMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.log,
		handlers: make(map[string]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.dlqTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.brokers...), Topic: cfg.dlqTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic, h := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.brokers,
			Topic:    topic,
			GroupID:     c.cfg.groupID,
			StartOffset: c.cfg.startOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
		c.readers = append(c.readers, r)
		c.wg.Add(1)
		go c.consume(r, h)
	}
	c.log.Info("kafka consumer started",
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.groupID))
	return nil
}

// Stop cancels the readers and waits for in-flight messages until ctx is
// done.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopped.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("stop kafka consumer: %w", ctx.Err())
		}
		for _, r := range c.readers {
			_ = r.Close()
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		if err == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return err
}

func (c *Consumer) consume(r *kafka.Reader, h MessageHandler) {
	defer c.wg.Done()
	topic := h.Topic()
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error("kafka fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		start := time.Now()
		err = c.handle(h, msg)
		consumerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			consumerFailures.WithLabelValues(topic).Inc()
			c.log.Error("kafka message failed",
				logger.String("topic", topic),
				logger.Int("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Error(err))
			c.deadLetter(msg)
		}
		if err := r.CommitMessages(context.Background(), msg); err != nil {
			c.log.Error("kafka commit", logger.String("topic", topic), logger.Error(err))
		}
	}
}

// handle retries h with backoff and turns handler panics into errors.
func (c *Consumer) handle(h MessageHandler, msg kafka.Message) error {
	b := &backoff.Backoff{Min: c.cfg.minDelay, Max: c.cfg.maxDelay, Factor: 2, Jitter: true}
	var err error
	for attempt := 0; ; attempt++ {
		if err = safeHandle(c.ctx, h, msg.Value); err == nil || attempt >= c.cfg.retries {
			return err
		}
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, value)
}

func (c *Consumer) deadLetter(msg kafka.Message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.Topic)}},
	})
	if err != nil {
		c.log.Error("write dead letter", logger.String("topic", c.cfg.dlqTopic), logger.Error(err))
	}
}

var (
	consumerMetricsOnce sync.Once
	consumerLatency     *prometheus.HistogramVec
	consumerFailures    *prometheus.CounterVec
)

func registerConsumerMetrics() {
	consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "stockcast_kafka_handle_seconds",
		Help: "Time to handle one consumed message, retries included",
	}, []string{"topic"})
	consumerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockcast_kafka_handle_failures_total",
		Help: "Consumed messages that failed every attempt",
	}, []string{"topic"})
}

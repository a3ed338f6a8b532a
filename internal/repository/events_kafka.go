package repository

import (
	"context"
	"fmt"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	pkgkafka "StockCast/pkg/kafka"
	applogger "StockCast/pkg/logger"
)

// KafkaEventPublisher writes training results and predictions keyed by
// ticker, so every event of one ticker lands on one partition.
type KafkaEventPublisher struct {
	producer     *pkgkafka.Producer
	resultsTopic string
	predictTopic string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, resultsTopic, predictTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, resultsTopic: resultsTopic, predictTopic: predictTopic}
}

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)

func (p *KafkaEventPublisher) PublishTrainingResult(ctx context.Context, r models.TrainingResult) error {
	if err := p.producer.Publish(ctx, p.resultsTopic, []byte(r.Key.Ticker), r); err != nil {
		return fmt.Errorf("publish training result %s: %w", r.Key, err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishPrediction(ctx context.Context, pr models.Prediction) error {
	if p.predictTopic == "" {
		return nil
	}
	if err := p.producer.Publish(ctx, p.predictTopic, []byte(pr.Symbol), pr); err != nil {
		return fmt.Errorf("publish prediction %s: %w", pr.Symbol, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogEventPublisher only logs events. Used when Kafka is disabled.
type LogEventPublisher struct {
	l *applogger.Logger
}

func NewLogEventPublisher(l *applogger.Logger) *LogEventPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &LogEventPublisher{l: l}
}

var _ repository.EventPublisher = (*LogEventPublisher)(nil)

func (p *LogEventPublisher) PublishTrainingResult(_ context.Context, r models.TrainingResult) error {
	p.l.Info("training result",
		applogger.String("run_id", r.RunID),
		applogger.String("key", r.Key.String()),
		applogger.Bool("success", r.Success),
		applogger.String("state", string(r.State)))
	return nil
}

func (p *LogEventPublisher) PublishPrediction(_ context.Context, pr models.Prediction) error {
	p.l.Debug("prediction",
		applogger.String("symbol", pr.Symbol),
		applogger.String("model", string(pr.Model)),
		applogger.Float64("price", pr.PredictedPrice))
	return nil
}

func (p *LogEventPublisher) Close() error { return nil }

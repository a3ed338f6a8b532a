package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"StockCast/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the queue keys in Redis.
const DefaultKeyPrefix = "stockcast:queue"

const (
	popTimeout   = time.Second
	pollInterval = 5 * time.Second
)

// Mode selects whether a RedisQueue also runs workers.
type Mode int

const (
	// ModeWorker publishes and runs registered jobs.
	ModeWorker Mode = iota
	// ModePublisher only publishes.
	ModePublisher
)

// RedisQueue is a list backed job queue. Failed messages wait in a sorted
// set until their retry time and end in a dead letter list.
type RedisQueue struct {
	log       *logger.Logger
	cfg       Config
	client    *redis.Client
	mode      Mode
	keyPrefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// Option configures RedisQueue.
type Option func(*RedisQueue)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisQueue creates a stopped queue.
func NewRedisQueue(lgr *logger.Logger, cfg Config, client *redis.Client, mode Mode, opts ...Option) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		log:       lgr,
		cfg:       cfg,
		client:    client,
		mode:      mode,
		keyPrefix: DefaultKeyPrefix,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisPublisher creates and starts a publish-only queue.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...Option) (*RedisQueue, error) {
	q := NewRedisQueue(lgr, Config{}, client, ModePublisher, opts...)
	if err := q.Start(); err != nil {
		return nil, err
	}
	return q, nil
}

// RegisterJob routes messages of job.Type() to job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModePublisher {
		r.log.Warn("job registration ignored on a publisher", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start checks the connection and, in worker mode, starts the workers and
// the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	if r.mode == ModePublisher {
		r.log.Info("redis publisher started", logger.String("prefix", r.keyPrefix))
		return nil
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoteRetries()
	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels running jobs and waits for the workers until ctx is done.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("stop queue: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode == ModeWorker && !known {
		return "", fmt.Errorf("no job registered for type %s", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: body, Timestamp: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// PublishMessage implements Publisher.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error) {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, popTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.log.Error("brpop", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(popTimeout):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("malformed queue message", logger.Error(err))
			continue
		}
		r.process(msg)
	}
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(msg)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	fields := []logger.Field{
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Duration("took", time.Since(start)),
	}
	switch {
	case err == nil:
		r.log.Info("message processed", fields...)
	case errors.Is(err, context.Canceled):
		r.log.Warn("message cancelled", fields...)
	default:
		r.fail(msg, append(fields, logger.Error(err)))
	}
}

// retryDelay doubles the base delay for every failed attempt.
func (r *RedisQueue) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return r.cfg.RetryDelay << (attempt - 1)
}

func (r *RedisQueue) fail(msg Message, fields []logger.Field) {
	msg.Attempts++
	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("message failed, moving to dead letters", fields...)
		r.bury(msg)
		return
	}

	at := r.now().Add(r.retryDelay(msg.Attempts))
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode retry", logger.Error(err))
		return
	}
	// the worker context may already be cancelled
	if err := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.log.Error("schedule retry", logger.Error(err))
		return
	}
	r.log.Warn("message failed, retry scheduled",
		append(fields, logger.Int("attempt", msg.Attempts), logger.String("retry_at", at.Format(time.RFC3339)))...)
}

func (r *RedisQueue) bury(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.client.LPush(context.Background(), r.deadKey(), data).Err(); err != nil {
		r.log.Error("lpush dead letter", logger.Error(err))
	}
}

// promoteRetries moves due retries back onto the main list.
func (r *RedisQueue) promoteRetries() {
	defer r.wg.Done()
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
		due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
			Min: "0",
			Max: strconv.FormatInt(r.now().Unix(), 10),
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.log.Error("fetch due retries", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			pipe := r.client.TxPipeline()
			pipe.ZRem(r.ctx, r.retryKey(), m)
			pipe.LPush(r.ctx, r.queueKey(), m)
			if _, err := pipe.Exec(r.ctx); err != nil && r.ctx.Err() == nil {
				r.log.Error("promote retry", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) queueKey() string { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadKey() string  { return r.keyPrefix + ":dlq" }

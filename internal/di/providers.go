package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	"StockCast/internal/handler/api"
	"StockCast/internal/handler/ws"
	"StockCast/internal/model"
	internalrepo "StockCast/internal/repository"
	"StockCast/internal/service/calendar"
	"StockCast/internal/service/ratelimit"
	"StockCast/internal/service/yahoo"
	"StockCast/internal/usecase"
	"StockCast/pkg/cache"
	pkgch "StockCast/pkg/clickhouse"
	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	"StockCast/pkg/logger"
	"StockCast/pkg/metrics"
	"StockCast/pkg/queue"
	"StockCast/pkg/retry"
	"StockCast/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideRedisCache connects to Redis when enabled. It returns nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("stockcast:cache"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCacheService layers a short-lived memory cache over Redis, or falls
// back to the memory cache alone.
func ProvideCacheService(rc *cache.RedisCache) (cache.Service, func()) {
	var c cache.Service
	if rc != nil {
		c = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(2000),
			cache.WithLayeredMemoryTTL(30*time.Second),
		)
	} else {
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(5000), cache.WithMemoryCleanup(time.Minute))
	}
	return c, func() { _ = c.Close() }
}

func ProvideKeyLocker(c cache.Service) repository.KeyLocker {
	return internalrepo.NewCacheLocker(c)
}

func ProvidePredictionCache(c cache.Service, cfg *config.Config) repository.PredictionCache {
	return internalrepo.NewCachedPredictions(c, cfg.Forecast.CacheTTL)
}

// ProvideClickHouseClient connects to ClickHouse when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	cc := cfg.ClickHouse
	client, err := pkgch.NewClient(pkgch.Config{
		Host:         cc.Host,
		Port:         cc.Port,
		Database:     cc.Database,
		User:         cc.User,
		Password:     cc.Password,
		UseHTTP:      cc.UseHTTP,
		AsyncInsert:  cc.AsyncInsert,
		WaitForAsync: cc.WaitForAsync,
		DialTimeout:  cc.DialTimeout,
		ReadTimeout:  cc.ReadTimeout,
		MaxExecTime:  cc.MaxExecutionTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePriceHistory stores downloaded bars in ClickHouse, or in memory
// without it.
func ProvidePriceHistory(ch *pkgch.Client, cfg *config.Config, lgr *logger.Logger) (repository.PriceHistory, error) {
	if ch == nil {
		return internalrepo.NewMemoryPriceHistory(), nil
	}
	h := internalrepo.NewCHPriceHistory(ch, cfg.ClickHouse.Database+".daily_bars", lgr)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := ch.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.ClickHouse.Database); err != nil {
		return nil, fmt.Errorf("clickhouse database: %w", err)
	}
	if err := h.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return h, nil
}

// ProvidePredictionLog appends predictions to Postgres, or to a bounded
// in-memory log without it.
func ProvidePredictionLog(cfg *config.Config) (repository.PredictionLog, func(), error) {
	if !cfg.Postgres.Enabled {
		return internalrepo.NewMemoryPredictionLog(1000), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	pg, err := internalrepo.NewPGPredictionLog(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Init(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer when enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes to Kafka, or only logs without it. The
// publisher owns the producer and closes it.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, lgr *logger.Logger) (repository.EventPublisher, func()) {
	if producer == nil {
		return internalrepo.NewLogEventPublisher(lgr), func() {}
	}
	p := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ResultsTopic, cfg.Kafka.PredictTopic)
	return p, func() { _ = p.Close() }
}

func ProvideArtifactStore(cfg *config.Config, lgr *logger.Logger) (repository.ArtifactStore, error) {
	return internalrepo.NewFileArtifactStore(cfg.Storage.ArtifactDir, lgr)
}

// ProvideArtifactCatalog opens the SQLite catalog. An empty path disables it.
func ProvideArtifactCatalog(cfg *config.Config) (repository.ArtifactCatalog, func(), error) {
	if cfg.Storage.CatalogPath == "" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	c, err := internalrepo.NewSQLiteCatalog(ctx, cfg.Storage.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvidePriceSource creates the rate-limited Yahoo chart client.
func ProvidePriceSource(cfg *config.Config, lgr *logger.Logger) repository.PriceSource {
	return yahoo.New(lgr,
		yahoo.WithBaseURL(cfg.Yahoo.BaseURL),
		yahoo.WithHTTPClient(xhttp.NewClient(
			xhttp.WithTimeout(cfg.Yahoo.Timeout),
			xhttp.WithUserAgent(cfg.Yahoo.UserAgent),
		)),
		yahoo.WithRateLimit(ratelimit.New(), cfg.Yahoo.RatePerMinute),
	)
}

func ProvideCalendar(cfg *config.Config) (repository.TradingCalendar, error) {
	return calendar.New(cfg.Forecast.Calendar)
}

// ProvideRetryPolicy builds the download retry policy. Throttled attempts
// wait on their own, longer schedule.
func ProvideRetryPolicy(cfg *config.Config, lgr *logger.Logger) *retry.Policy {
	t := cfg.Training
	return retry.New(
		retry.WithMaxAttempts(t.MaxAttempts),
		retry.WithBackoff(retry.Transient, t.RetryBase, t.RetryBase*8),
		retry.WithBackoff(retry.Throttled, t.ThrottleBase, t.ThrottleBase*8),
		retry.WithClassifier(usecase.ClassifyFetchError),
		retry.WithNotify(func(attempt int, class retry.Class, err error, wait time.Duration) {
			lgr.Warn("price download failed, retrying",
				logger.Int("attempt", attempt),
				logger.String("class", class.String()),
				logger.Duration("wait", wait),
				logger.Error(err))
		}),
	)
}

// modelSpecs overlays the configured topology on the stock one.
func modelSpecs(cfg *config.Config) func(models.ModelType) models.ModelSpec {
	m := cfg.Model
	return func(t models.ModelType) models.ModelSpec {
		s := model.DefaultSpec(t)
		if m.WindowLen > 0 {
			s.WindowLen = m.WindowLen
		}
		s.Dropout = m.Dropout
		s.Seed = m.Seed
		if t == models.ModelTransformer {
			if m.DModel > 0 {
				s.DModel, s.Heads = m.DModel, m.Heads
			}
			if m.FFN > 0 {
				s.FFN = m.FFN
			}
		} else if m.Hidden > 0 {
			s.Hidden = m.Hidden
		}
		return s
	}
}

func fitOptions(cfg *config.Config) model.FitOptions {
	o := model.DefaultFitOptions()
	o.Epochs = cfg.Training.Epochs
	o.BatchSize = cfg.Training.BatchSize
	o.LearningRate = cfg.Model.LearningRate
	o.Patience = cfg.Model.Patience
	o.ValidationFraction = cfg.Model.ValidationFraction
	o.Seed = cfg.Model.Seed
	return o
}

func ProvideTrainer(
	cfg *config.Config,
	source repository.PriceSource,
	store repository.ArtifactStore,
	locker repository.KeyLocker,
	m repository.Metrics,
	lgr *logger.Logger,
	catalog repository.ArtifactCatalog,
	history repository.PriceHistory,
	events repository.EventPublisher,
	policy *retry.Policy,
) (*usecase.Trainer, error) {
	start, err := time.Parse(models.DateLayout, cfg.Training.Start)
	if err != nil {
		return nil, fmt.Errorf("training start: %w", err)
	}
	return usecase.NewTrainer(source, store, locker, m, lgr,
		usecase.WithCatalog(catalog),
		usecase.WithPriceHistory(history),
		usecase.WithEvents(events),
		usecase.WithRetryPolicy(policy),
		usecase.WithModelSpecs(modelSpecs(cfg)),
		usecase.WithFitOptions(fitOptions(cfg)),
		usecase.WithLockTTL(cfg.Training.LockTTL),
		usecase.WithDefaultStart(start),
	), nil
}

func ProvidePredictor(
	cfg *config.Config,
	source repository.PriceSource,
	store repository.ArtifactStore,
	cal repository.TradingCalendar,
	m repository.Metrics,
	lgr *logger.Logger,
	pc repository.PredictionCache,
	logs repository.PredictionLog,
	events repository.EventPublisher,
) *usecase.Predictor {
	return usecase.NewPredictor(source, store, cal, m, lgr,
		usecase.WithPredictionCache(pc),
		usecase.WithPredictionLog(logs),
		usecase.WithPredictionEvents(events),
		usecase.WithMemoTTL(cfg.Forecast.MemoTTL),
		usecase.WithRecentDays(cfg.Forecast.RecentDays),
	)
}

func ProvideRegistry(
	store repository.ArtifactStore,
	catalog repository.ArtifactCatalog,
	history repository.PriceHistory,
	source repository.PriceSource,
	logs repository.PredictionLog,
	lgr *logger.Logger,
) *usecase.Registry {
	return usecase.NewRegistry(store, catalog, history, source, logs, lgr)
}

// ProvideModelEvents builds the invalidation handler. Without Kafka it
// listens to the trainer of this process directly.
func ProvideModelEvents(
	cfg *config.Config,
	predictor *usecase.Predictor,
	pc repository.PredictionCache,
	m repository.Metrics,
	lgr *logger.Logger,
	trainer *usecase.Trainer,
) *usecase.ModelEventsHandler {
	h := usecase.NewModelEventsHandler(cfg.Kafka.ResultsTopic, predictor, pc, m, lgr)
	if !cfg.Kafka.Enabled {
		trainer.Subscribe(h.Observe)
	}
	return h
}

// ProvideKafkaConsumer consumes training results when Kafka is enabled. Each
// instance joins its own group under the configured prefix, since every one
// of them has to drop its own memoized models.
func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger, h *usecase.ModelEventsHandler) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(pkgkafka.InstanceGroupID(cfg.Kafka.ConsumerGroup, os.Hostname)),
		pkgkafka.WithConsumerFromLatest(),
		pkgkafka.WithConsumerRetry(3, 100*time.Millisecond, 2*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	return consumer, nil
}

// ProvideTrainingHub streams the transitions of every run to websocket clients.
func ProvideTrainingHub(lgr *logger.Logger, trainer *usecase.Trainer) *ws.TrainingHub {
	hub := ws.NewTrainingHub(lgr)
	trainer.Subscribe(hub.Publish)
	return hub
}

func ProvideTrainingJobHandler(trainer *usecase.Trainer, lgr *logger.Logger) *usecase.TrainingJobHandler {
	return usecase.NewTrainingJobHandler(trainer, lgr)
}

// ProvideRedisQueue creates the queue that both accepts and runs training
// jobs. It is nil without Redis.
func ProvideRedisQueue(cfg *config.Config, rc *cache.RedisCache, h *usecase.TrainingJobHandler, lgr *logger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(lgr, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.ModeWorker, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	q.RegisterJob(h)
	return q
}

// ProvideRedisPublisher creates a started, publish-only queue. It is nil
// without Redis.
func ProvideRedisPublisher(cfg *config.Config, rc *cache.RedisCache, lgr *logger.Logger) (*queue.RedisQueue, func(), error) {
	if rc == nil {
		return nil, func() {}, nil
	}
	q, err := queue.NewRedisPublisher(lgr, rc.Client(), queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	if err != nil {
		return nil, nil, fmt.Errorf("start redis publisher: %w", err)
	}
	return q, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	}, nil
}

// ProvideLocalJobs runs jobs in-process when there is no Redis queue.
func ProvideLocalJobs(cfg *config.Config, q *queue.RedisQueue, h *usecase.TrainingJobHandler, lgr *logger.Logger) (*usecase.LocalJobs, func()) {
	if q != nil {
		return nil, func() {}
	}
	j := usecase.NewLocalJobs(h, cfg.Queue.Workers, 64, lgr)
	return j, func() { _ = j.Close() }
}

func ProvideJobQueue(q *queue.RedisQueue, local *usecase.LocalJobs) repository.JobQueue {
	if q != nil {
		return internalrepo.NewQueueJobs(q)
	}
	return local
}

func parseModels(names []string) ([]models.ModelType, error) {
	out := make([]models.ModelType, 0, len(names))
	for _, n := range names {
		mt, err := models.ParseModelType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

func ProvideScheduler(cfg *config.Config, jobs repository.JobQueue) (*usecase.Scheduler, error) {
	defaults, err := parseModels(cfg.Training.Models)
	if err != nil {
		return nil, fmt.Errorf("training.models: %w", err)
	}
	return usecase.NewScheduler(jobs, defaults), nil
}

func ProvideBatchTrainer(cfg *config.Config, trainer *usecase.Trainer, lgr *logger.Logger) *usecase.BatchTrainer {
	return usecase.NewBatchTrainer(trainer, cfg.Training.Parallelism, lgr)
}

// ProvideHTTPServer registers the REST and websocket handlers.
func ProvideHTTPServer(
	cfg *config.Config,
	lgr *logger.Logger,
	predictor *usecase.Predictor,
	registry *usecase.Registry,
	scheduler *usecase.Scheduler,
	hub *ws.TrainingHub,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handlers := []xhttp.Handler{
		api.NewForecastEchoHandler(lgr, predictor, registry),
		api.NewCatalogEchoHandler(lgr, registry, scheduler),
		hub,
	}
	return xhttp.NewServer(lgr, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, cfg.Server.AllowOrigins...),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	httpServer *xhttp.Server,
	hub *ws.TrainingHub,
	registry *usecase.Registry,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
) *server.App {
	return server.New(cfg, lgr, httpServer,
		server.WithTrainingHub(hub),
		server.WithResync(registry),
		server.WithConsumer(consumer),
		server.WithJobQueue(q),
	)
}

// Toolkit is what the training command works with.
type Toolkit struct {
	Logger *logger.Logger
	Batch  *usecase.BatchTrainer
	// Scheduler is nil without a Redis queue to hand jobs to.
	Scheduler *usecase.Scheduler
}

func ProvideToolkit(cfg *config.Config, lgr *logger.Logger, batch *usecase.BatchTrainer, q *queue.RedisQueue) (*Toolkit, error) {
	t := &Toolkit{Logger: lgr, Batch: batch}
	if q == nil {
		return t, nil
	}
	s, err := ProvideScheduler(cfg, internalrepo.NewQueueJobs(q))
	if err != nil {
		return nil, err
	}
	t.Scheduler = s
	return t, nil
}

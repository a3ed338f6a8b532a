package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockCast/pkg/config"
	xhttp "StockCast/pkg/http"
	pkgkafka "StockCast/pkg/kafka"
	applogger "StockCast/pkg/logger"
	"StockCast/pkg/queue"
)

// Runner is a background loop tied to the application context.
type Runner interface {
	Run(ctx context.Context)
}

// Resyncer rebuilds derived state once at startup.
type Resyncer interface {
	Resync(ctx context.Context) (int, error)
}

// Option configures App.
type Option func(*App)

// WithTrainingHub runs the websocket hub for the lifetime of the app.
func WithTrainingHub(r Runner) Option {
	return func(a *App) { a.hub = r }
}

// WithResync registers a startup resync step.
func WithResync(r Resyncer) Option {
	return func(a *App) { a.resync = r }
}

// WithConsumer starts and stops a Kafka consumer with the app. nil is ignored.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

// WithJobQueue starts and stops the job queue workers with the app. nil is ignored.
func WithJobQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	hub        Runner
	resync     Resyncer
	consumer   *pkgkafka.Consumer
	queue      *queue.RedisQueue
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, lgr *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	a := &App{cfg: cfg, log: lgr, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if a.resync != nil {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := a.resync.Resync(rctx)
		cancel()
		if err != nil {
			// listings fall back to the artifact store
			a.log.Warn("catalog resync failed", applogger.Error(err))
		} else {
			a.log.Info("catalog resynced", applogger.Int("artifacts", n))
		}
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	if a.hub != nil {
		go a.hub.Run(hubCtx)
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.log.Error("job queue start error", applogger.Error(err))
			return err
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	stopHub()
	return a.shutdown()
}

// shutdown stops intake first, then the workers.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

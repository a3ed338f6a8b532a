package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

// Class tells Do how to treat an error.
type Class int

const (
	// Permanent errors stop retrying immediately.
	Permanent Class = iota
	// Transient errors wait on the standard schedule.
	Transient
	// Throttled errors wait on the long schedule.
	Throttled
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Throttled:
		return "throttled"
	default:
		return "permanent"
	}
}

// Classifier maps an error onto a Class.
type Classifier func(err error) Class

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Notify is called before each wait with the failed attempt (1-based).
type Notify func(attempt int, class Class, err error, wait time.Duration)

// Config holds the retry policy.
type Config struct {
	MaxAttempts int
	Schedules   map[Class]*backoff.Backoff
	Classify    Classifier
	Sleep       Sleeper
	Notify      Notify
}

// Option configures a Policy.
type Option func(*Config)

// WithMaxAttempts caps the number of calls.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithBackoff sets the schedule of a class: min doubled after each failed
// attempt, capped at max.
func WithBackoff(class Class, min, max time.Duration) Option {
	return func(c *Config) {
		c.Schedules[class] = &backoff.Backoff{Min: min, Max: max, Factor: 2}
	}
}

// WithClassifier sets the error classifier.
func WithClassifier(fn Classifier) Option {
	return func(c *Config) {
		c.Classify = fn
	}
}

// WithSleeper replaces the wait function, mainly for tests.
func WithSleeper(fn Sleeper) Option {
	return func(c *Config) {
		c.Sleep = fn
	}
}

// WithNotify registers a callback run before each wait.
func WithNotify(fn Notify) Option {
	return func(c *Config) {
		c.Notify = fn
	}
}

// Policy is an immutable retry policy.
type Policy struct {
	cfg Config
}

// New builds a policy. Defaults: 5 attempts, every error transient, 5s doubling
// up to 40s for transient errors, 10s doubling up to 80s for throttled ones.
func New(opts ...Option) *Policy {
	cfg := Config{
		MaxAttempts: 5,
		Schedules: map[Class]*backoff.Backoff{
			Transient: {Min: 5 * time.Second, Max: 40 * time.Second, Factor: 2},
			Throttled: {Min: 10 * time.Second, Max: 80 * time.Second, Factor: 2},
		},
		Classify: func(error) Class { return Transient },
		Sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Policy{cfg: cfg}
}

// Wait returns the delay after failed attempt k (1-based) of the given class.
func (p *Policy) Wait(class Class, attempt int) time.Duration {
	b, ok := p.cfg.Schedules[class]
	if !ok || attempt < 1 {
		return 0
	}
	return b.ForAttempt(float64(attempt - 1))
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, fails permanently, the attempts run out or
// ctx is done. Permanent errors are returned as is.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		class := p.cfg.Classify(err)
		if class == Permanent {
			return err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		wait := p.Wait(class, attempt)
		if p.cfg.Notify != nil {
			p.cfg.Notify(attempt, class, err, wait)
		}
		if err := p.cfg.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return &ExhaustedError{Op: op, Attempts: p.cfg.MaxAttempts, Err: last}
}

// Value is Do for operations returning a result.
func Value[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

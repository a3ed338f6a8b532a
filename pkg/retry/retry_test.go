package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errFatal = errors.New("fatal")
	errSlow  = errors.New("slow down")
	errFlaky = errors.New("flaky")
)

func classify(err error) Class {
	switch {
	case errors.Is(err, errFatal):
		return Permanent
	case errors.Is(err, errSlow):
		return Throttled
	default:
		return Transient
	}
}

type recordedSleeps struct{ waits []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestScheduleTiers(t *testing.T) {
	p := New()
	want := map[Class][]time.Duration{
		Transient: {5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second},
		Throttled: {10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second},
	}
	for class, waits := range want {
		for i, w := range waits {
			if got := p.Wait(class, i+1); got != w {
				t.Fatalf("%s attempt %d: got %v want %v", class, i+1, got, w)
			}
		}
	}
}

func TestDoExhausts(t *testing.T) {
	rec := &recordedSleeps{}
	p := New(WithClassifier(classify), WithSleeper(rec.sleep))
	calls := 0
	err := p.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return errFlaky
	})
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 5 {
		t.Fatalf("expected exhaustion after 5 attempts, got %v", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Fatalf("exhausted error should wrap the last failure")
	}
	if calls != 5 || len(rec.waits) != 4 {
		t.Fatalf("calls=%d waits=%v", calls, rec.waits)
	}
	if rec.waits[3] != 40*time.Second {
		t.Fatalf("unexpected last wait %v", rec.waits[3])
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	rec := &recordedSleeps{}
	p := New(WithClassifier(classify), WithSleeper(rec.sleep))
	calls := 0
	err := p.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) || calls != 1 || len(rec.waits) != 0 {
		t.Fatalf("err=%v calls=%d waits=%v", err, calls, rec.waits)
	}
}

func TestDoMixedClasses(t *testing.T) {
	rec := &recordedSleeps{}
	var notified []Class
	p := New(
		WithClassifier(classify),
		WithSleeper(rec.sleep),
		WithNotify(func(_ int, c Class, _ error, _ time.Duration) { notified = append(notified, c) }),
	)
	results := []error{errSlow, errFlaky, nil}
	calls := 0
	err := p.Do(context.Background(), "fetch", func(context.Context) error {
		e := results[calls]
		calls++
		return e
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	want := []time.Duration{10 * time.Second, 10 * time.Second}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("wait %d: got %v want %v", i, rec.waits[i], want[i])
		}
	}
	if len(notified) != 2 || notified[0] != Throttled || notified[1] != Transient {
		t.Fatalf("unexpected notifications %v", notified)
	}
}

func TestValueAndCancel(t *testing.T) {
	p := New(WithSleeper(func(context.Context, time.Duration) error { return nil }))
	n := 0
	v, err := Value(context.Background(), p, "count", func(context.Context) (int, error) {
		n++
		if n < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("got %v %v", v, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = New(WithMaxAttempts(3))
	err = p.Do(ctx, "cancelled", func(context.Context) error { return errFlaky })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

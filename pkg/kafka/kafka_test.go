package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]string{"ticker": "AAPL"})
	if err != nil || string(b) != `{"ticker":"AAPL"}` {
		t.Fatalf("unexpected %s %v", b, err)
	}
	if b, _ := encodeValue("raw"); string(b) != "raw" {
		t.Fatalf("string passthrough failed: %s", b)
	}
	if _, err := encodeValue(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestCompressionCodec(t *testing.T) {
	cases := map[string]kafka.Compression{
		"snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"":       kafka.Gzip,
		"none":   0,
	}
	for in, want := range cases {
		if got := compressionCodec(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("producer without brokers should fail")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("consumer without brokers should fail")
	}
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithHashByKey(true))
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	if _, ok := p.writer.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("hash balancer not applied")
	}
	_ = p.Close()
}

func TestConsumerStartRequiresHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("start without handlers should fail")
	}
}

type flakyHandler struct {
	fails int
	calls int
}

func (h *flakyHandler) Topic() string { return "training.results" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.fails {
		panic("boom")
	}
	return nil
}

func TestHandleRetriesAndRecovers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerRetry(2, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	h := &flakyHandler{fails: 2}
	if err := c.handle(h, kafka.Message{}); err != nil || h.calls != 3 {
		t.Fatalf("calls %d err %v", h.calls, err)
	}
	h = &flakyHandler{fails: 5}
	if err := c.handle(h, kafka.Message{}); err == nil || h.calls != 3 {
		t.Fatalf("expected failure after 3 calls, got %d %v", h.calls, err)
	}
}

func TestInstanceGroupID(t *testing.T) {
	host := func(name string) func() (string, error) {
		return func() (string, error) { return name, nil }
	}
	a := InstanceGroupID("stockcast-api", host("api-1"))
	b := InstanceGroupID("stockcast-api", host("api-2"))
	if a != "stockcast-api-api-1" || a == b {
		t.Fatalf("instances must not share a group: %q %q", a, b)
	}

	broken := func() (string, error) { return "", errors.New("no hostname") }
	x, y := InstanceGroupID("stockcast-api", broken), InstanceGroupID("stockcast-api", broken)
	if !strings.HasPrefix(x, "stockcast-api-") || len(x) != len("stockcast-api-")+8 || x == y {
		t.Fatalf("fallback groups %q %q", x, y)
	}
}

func TestConsumerStartOffset(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if c.cfg.startOffset != kafka.FirstOffset {
		t.Fatalf("default start offset %d", c.cfg.startOffset)
	}
	c, _ = NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerFromLatest())
	if c.cfg.startOffset != kafka.LastOffset {
		t.Fatalf("from latest start offset %d", c.cfg.startOffset)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher hands a typed payload to whatever runs the matching Job.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Config contains the worker side settings of a queue.
type Config struct {
	Workers int
	// RetryLimit is how many times a failed message is retried before it
	// moves to the dead letter list.
	RetryLimit int
	// RetryDelay is the first retry delay; it doubles on every attempt.
	RetryDelay time.Duration
}

// Message is the envelope stored in Redis. The payload stays raw JSON until
// a job decodes it.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParsePayload decodes a job payload into T. Jobs receive raw JSON from the
// Redis queue and typed values from in-process callers.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload map: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

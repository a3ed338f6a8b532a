package queue

import "context"

// Job runs the messages of one type. A returned error schedules a retry,
// so jobs report only failures that another attempt could fix.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

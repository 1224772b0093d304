package crossbar

import (
	"context"
	"time"
)

// Message is the delivery record for one published value. Messages are
// immutable once published; subscribers must not retain and mutate Body
// if it is a pointer type.
type Message[T any] struct {
	// Id is monotonically increasing per channel.
	Id int64

	// CorrelationId is caller-supplied or allocated by the bus; the
	// allocator is strictly increasing process-wide.
	CorrelationId int64

	// Key is the optional routing and conflation identifier. Messages
	// with an empty key bypass conflation and the state store.
	Key string

	// From is the optional publisher tag.
	From string

	// Channel is the concrete channel the message was published on.
	// Wildcard subscribers use it to tell bound channels apart.
	Channel string

	// Inception is the timestamp captured at publish. It carries Go's
	// monotonic clock reading, so time.Since(m.Inception) measures true
	// elapsed time. Replayed state messages keep their original value.
	Inception time.Time

	// Body is the typed message payload.
	Body T
}

// Handler processes messages delivered to a subscription. Handlers for one
// subscription are invoked serially; a returned error is recorded as a
// handler fault and does not stop the read loop.
type Handler[T any] func(ctx context.Context, m Message[T]) error

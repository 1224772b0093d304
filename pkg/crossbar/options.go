package crossbar

import (
	"time"

	"github.com/cuemby/crossbar/pkg/stats"
)

// publishParams carries the optional publish arguments.
type publishParams struct {
	correlationID int64
	key           string
	from          string
	store         bool
}

// PublishOption customizes a single publish call.
type PublishOption func(*publishParams)

// WithCorrelationId propagates a caller-supplied correlation id instead of
// allocating one.
func WithCorrelationId(id int64) PublishOption {
	return func(p *publishParams) { p.correlationID = id }
}

// WithKey sets the routing and conflation key.
func WithKey(key string) PublishOption {
	return func(p *publishParams) { p.key = key }
}

// WithStore retains the message in the channel's state store (requires a
// non-empty key).
func WithStore() PublishOption {
	return func(p *publishParams) { p.store = true }
}

// WithFrom tags the message with a publisher name.
func WithFrom(tag string) PublishOption {
	return func(p *publishParams) { p.from = tag }
}

// TimeoutFailure describes one handler deadline expiry, passed to the
// OnTimeout callback.
type TimeoutFailure struct {
	SubscriptionID   string
	SubscriptionName string
	Channel          string
	MessageId        int64
	CorrelationId    int64
	Key              string
	Deadline         time.Duration
}

// subOptions holds the resolved per-subscription options.
type subOptions struct {
	name               string
	fetchState         bool
	strategy           SlowConsumerStrategy
	bufferCapacity     int // <= 0 means unbounded
	conflationInterval time.Duration
	handlerTimeout     time.Duration
	onTimeout          func(TimeoutFailure)
	statsOptions       stats.Options
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subOptions)

// WithSubscriptionName sets the diagnostic label. Names need not be unique.
func WithSubscriptionName(name string) SubscribeOption {
	return func(o *subOptions) { o.name = name }
}

// WithFetchState replays the channel's state-store snapshot to the
// subscriber before any newly published message.
func WithFetchState() SubscribeOption {
	return func(o *subOptions) { o.fetchState = true }
}

// WithSlowConsumerStrategy overrides the bus default strategy.
func WithSlowConsumerStrategy(s SlowConsumerStrategy) SubscribeOption {
	return func(o *subOptions) { o.strategy = s }
}

// WithBufferCapacity bounds the subscription queue length.
func WithBufferCapacity(n int) SubscribeOption {
	return func(o *subOptions) { o.bufferCapacity = n }
}

// WithUnboundedBuffer removes the queue bound.
func WithUnboundedBuffer() SubscribeOption {
	return func(o *subOptions) { o.bufferCapacity = 0 }
}

// WithConflationInterval enables key-indexed conflation with the given
// flush interval. Zero or negative disables conflation.
func WithConflationInterval(d time.Duration) SubscribeOption {
	return func(o *subOptions) { o.conflationInterval = d }
}

// WithHandlerTimeout sets a soft per-message deadline. On expiry the
// handler is reported timed out but the message remains counted as
// processed; the in-flight handler is never aborted.
func WithHandlerTimeout(d time.Duration) SubscribeOption {
	return func(o *subOptions) { o.handlerTimeout = d }
}

// WithOnTimeout registers a callback invoked with a TimeoutFailure record
// whenever the handler deadline expires.
func WithOnTimeout(f func(TimeoutFailure)) SubscribeOption {
	return func(o *subOptions) { o.onTimeout = f }
}

// WithStatsOptions overrides the percentile and EWMA parameters for this
// subscription's trackers.
func WithStatsOptions(opts stats.Options) SubscribeOption {
	return func(o *subOptions) { o.statsOptions = opts }
}

package crossbar

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/crossbar/pkg/log"
	"github.com/cuemby/crossbar/pkg/stats"
)

// CrossBar is the in-process publish/subscribe bus: a registry of typed
// channels with per-subscriber delivery pipelines. Channels are created
// lazily on first publish or subscribe and destroyed only on Close.
type CrossBar struct {
	cfg Config
	log zerolog.Logger

	channels     sync.Map // name string -> anyChannel
	channelCount atomic.Int64
	createMu     sync.Mutex // cold path: channel creation

	wildcards   *wildcardIndex
	correlation atomic.Int64

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a CrossBar with the default configuration.
func New() *CrossBar {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a CrossBar with the given configuration. Zero
// values fall back to defaults.
func NewWithConfig(cfg Config) *CrossBar {
	cb := &CrossBar{
		cfg:       cfg.withDefaults(),
		log:       log.WithComponent("crossbar"),
		wildcards: newWildcardIndex(),
	}
	cb.ctx, cb.cancel = context.WithCancel(context.Background())
	return cb
}

// Config returns the bus configuration.
func (cb *CrossBar) Config() Config {
	return cb.cfg
}

// NextCorrelationId allocates a strictly increasing correlation id.
func (cb *CrossBar) NextCorrelationId() int64 {
	return cb.correlation.Add(1)
}

// Close shuts the bus down: every subscription's read loop is cancelled,
// buffers are released without draining, and the registry is cleared.
// Idempotent.
func (cb *CrossBar) Close() error {
	if !cb.closed.CompareAndSwap(false, true) {
		return nil
	}
	cb.cancel()

	cb.channels.Range(func(k, v any) bool {
		v.(anyChannel).close()
		cb.channels.Delete(k)
		return true
	})
	cb.channelCount.Store(0)
	cb.log.Info().Msg("crossbar closed")
	return nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// assertChannel recovers the typed view of a registry entry, or fails with
// a TypeMismatchError naming both types.
func assertChannel[T any](v any) (*typedChannel[T], error) {
	tc, ok := v.(*typedChannel[T])
	if !ok {
		ac := v.(anyChannel)
		return nil, &TypeMismatchError{
			Channel: ac.name(),
			Want:    ac.bodyType(),
			Got:     typeOf[T](),
		}
	}
	return tc, nil
}

// getOrCreate returns the channel under name with body type T. The hot
// "already exists" path is a lock-free registry load; creation takes the
// narrow create lock, then binds pending wildcard subscriptions before the
// caller's first publish proceeds.
func getOrCreate[T any](cb *CrossBar, name string) (*typedChannel[T], error) {
	if v, ok := cb.channels.Load(name); ok {
		return assertChannel[T](v)
	}

	if err := cb.cfg.validateChannelName(name); err != nil {
		return nil, err
	}

	cb.createMu.Lock()
	if v, ok := cb.channels.Load(name); ok {
		cb.createMu.Unlock()
		return assertChannel[T](v)
	}
	if cb.cfg.MaxChannels > 0 && int(cb.channelCount.Load()) >= cb.cfg.MaxChannels {
		cb.createMu.Unlock()
		return nil, fmt.Errorf("crossbar: channel %q: %w (cap %d)", name, ErrMaxChannels, cb.cfg.MaxChannels)
	}
	tc := newTypedChannel[T](cb, name)
	cb.channels.Store(name, tc)
	cb.channelCount.Add(1)
	cb.createMu.Unlock()

	// Outside the create lock: binding and lifecycle emission publish on
	// other channels and may recurse into creation.
	cb.wildcards.bindMatching(tc, cb.cfg.isSystemChannel)
	cb.emitLifecycle(LifecycleEvent{Type: LifecycleChannelCreated, Channel: name})
	cb.log.Debug().Str("channel", name).Str("body_type", tc.typ.String()).Msg("channel created")
	return tc, nil
}

// Publish routes a message to every live subscriber of the channel. It
// fails only on an invalid channel name, a closed bus, a body type
// conflicting with the channel's established type, a new channel beyond
// MaxChannels, or a WaitForSpace release; slow subscribers never fail the
// publisher.
func Publish[T any](cb *CrossBar, channel string, body T, opts ...PublishOption) error {
	if cb.closed.Load() {
		return fmt.Errorf("%w: %w", ErrFailedPublish, ErrBusClosed)
	}

	ch, err := getOrCreate[T](cb, channel)
	if err != nil {
		return err
	}

	var p publishParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.correlationID == 0 {
		p.correlationID = cb.NextCorrelationId()
	}
	return ch.publish(body, p)
}

// Subscribe attaches a new subscription to the channel or wildcard
// pattern. The subscription owns a private buffer and a single read loop;
// the caller owns its lifetime and must Close it.
func Subscribe[T any](cb *CrossBar, pattern string, handler Handler[T], opts ...SubscribeOption) (*Subscription[T], error) {
	if cb.closed.Load() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubscription, ErrBusClosed)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidSubscription)
	}
	if err := cb.cfg.validatePattern(pattern); err != nil {
		return nil, err
	}

	o := subOptions{
		strategy:           cb.cfg.DefaultSlowConsumerStrategy,
		bufferCapacity:     cb.cfg.DefaultBufferCapacity,
		conflationInterval: cb.cfg.DefaultConflationInterval,
		statsOptions:       cb.cfg.Stats,
	}
	if cb.cfg.isSystemChannel(pattern) {
		o.bufferCapacity = cb.cfg.SystemChannelBufferCapacity
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Subscription[T]{
		id:       uuid.NewString(),
		subName:  o.name,
		pattern:  pattern,
		wildcard: isWildcard(pattern),
		bus:      cb,
		handler:  handler,
		opts:     o,
		queue:    newMsgQueue[T](o.bufferCapacity),
		tracker:  stats.NewSubscriptionTracker(o.statsOptions),
		done:     make(chan struct{}),
		bound:    make(map[string]*typedChannel[T]),
	}
	s.ctx, s.cancel = context.WithCancel(cb.ctx)
	s.log = log.WithComponent("subscription").With().
		Str("subscription_id", s.id).
		Str("pattern", pattern).
		Logger()
	if o.conflationInterval > 0 {
		s.conf = newConflator[T](o.conflationInterval)
	}

	if s.wildcard {
		bind := func(c anyChannel) {
			tc, ok := c.(*typedChannel[T])
			if !ok {
				cb.reportError(ErrorReport{
					ErrorType:      ErrorKindTypeMismatch,
					Severity:       SeverityWarning,
					ChannelName:    c.name(),
					SubscriptionID: s.id,
					Message: fmt.Sprintf("wildcard %q skipped channel %q: holds %v, not %v",
						pattern, c.name(), c.bodyType(), typeOf[T]()),
				})
				return
			}
			if s.state.Load() != subActive {
				return
			}
			tc.attach(s)
			if !s.addBound(tc) {
				// Lost the race with disposal; undo the attach.
				tc.detachSub(s.id)
				return
			}
			cb.emitLifecycle(LifecycleEvent{
				Type:             LifecycleSubscriptionAdded,
				Channel:          tc.name(),
				SubscriptionID:   s.id,
				SubscriptionName: s.subName,
			})
		}
		cb.wildcards.add(wildcardEntry{subID: s.id, pattern: pattern, bind: bind})

		// Bind to every matching existing channel. System channels are
		// skipped unless the pattern itself targets them.
		cb.channels.Range(func(_, v any) bool {
			c := v.(anyChannel)
			if cb.cfg.isSystemChannel(c.name()) && !cb.cfg.isSystemChannel(pattern) {
				return true
			}
			if matchPattern(pattern, c.name()) {
				bind(c)
			}
			return true
		})
	} else {
		ch, err := getOrCreate[T](cb, pattern)
		if err != nil {
			s.cancel()
			return nil, err
		}
		ch.attach(s)
		s.addBound(ch)
		cb.emitLifecycle(LifecycleEvent{
			Type:             LifecycleSubscriptionAdded,
			Channel:          pattern,
			SubscriptionID:   s.id,
			SubscriptionName: o.name,
		})
	}

	go s.run()
	return s, nil
}

// GetChannels returns a snapshot of every channel in the registry.
func (cb *CrossBar) GetChannels() []ChannelInfo {
	out := make([]ChannelInfo, 0, cb.channelCount.Load())
	cb.channels.Range(func(_, v any) bool {
		out = append(out, v.(anyChannel).info())
		return true
	})
	return out
}

// GetChannelSubscriptions returns snapshots of the subscriptions currently
// attached to the named channel.
func (cb *CrossBar) GetChannelSubscriptions(name string) ([]SubscriptionInfo, error) {
	v, ok := cb.channels.Load(name)
	if !ok {
		return nil, fmt.Errorf("crossbar: channel %q not found", name)
	}
	return v.(anyChannel).subscriptions(), nil
}

// GetChannelState returns the channel's state-store snapshot.
func GetChannelState[T any](cb *CrossBar, name string) ([]Message[T], error) {
	v, ok := cb.channels.Load(name)
	if !ok {
		return nil, nil
	}
	tc, err := assertChannel[T](v)
	if err != nil {
		return nil, err
	}
	return tc.state.snapshot(), nil
}

// Overview is the aggregate snapshot exposed to reporting collaborators.
type Overview struct {
	TotalChannels           int
	TotalSubscriptions      int
	WildcardSubscriptions   int
	PublishRate             float64
	ProcessRate             float64
	TotalPublished          int64
	TotalProcessed          int64
	TotalTimedOut           int64
	BackloggedSubscriptions int
}

// Overview aggregates channel and subscription snapshots. Wildcard
// subscriptions attached to several channels are counted once.
func (cb *CrossBar) Overview() Overview {
	var ov Overview
	seen := make(map[string]bool)

	cb.channels.Range(func(_, v any) bool {
		c := v.(anyChannel)
		ci := c.info()
		ov.TotalChannels++
		ov.PublishRate += ci.Stats.PublishRate
		ov.TotalPublished += ci.Stats.TotalPublished

		for _, si := range c.subscriptions() {
			if seen[si.ID] {
				continue
			}
			seen[si.ID] = true
			ov.TotalSubscriptions++
			ov.ProcessRate += si.Stats.ProcessRate
			ov.TotalProcessed += si.Stats.ProcessedCount
			ov.TotalTimedOut += si.Stats.TimeoutCount
			if si.Stats.QueueDepth > 0 {
				ov.BackloggedSubscriptions++
			}
		}
		return true
	})

	ov.WildcardSubscriptions = cb.wildcards.count()
	return ov
}

package crossbar

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/crossbar/pkg/stats"
)

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState string

const (
	// StateActive means the read loop is delivering messages.
	StateActive SubscriptionState = "active"

	// StateDetached means the owner disposed the subscription or the bus
	// shut down. Terminal.
	StateDetached SubscriptionState = "detached"

	// StateFaulted means the subscription hit an unrecoverable failure
	// (buffer overflow under FailSubscriber). Terminal.
	StateFaulted SubscriptionState = "faulted"
)

const (
	subActive int32 = iota
	subDetached
	subFaulted
)

// SubscriptionInfo is a read-only snapshot of one subscription.
type SubscriptionInfo struct {
	ID      string
	Name    string
	Pattern string
	State   SubscriptionState
	Stats   stats.SubscriptionStats
}

// Subscription is one subscriber's private delivery pipeline: a bounded
// buffer, an optional conflation map, statistics and a single read loop
// that invokes the handler serially. It is owned by its creator; the
// registry never prolongs its lifetime beyond disposal.
type Subscription[T any] struct {
	id       string
	subName  string
	pattern  string
	wildcard bool

	bus     *CrossBar
	handler Handler[T]
	opts    subOptions

	queue   *msgQueue[T]
	conf    *conflator[T]
	tracker *stats.SubscriptionTracker

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed when the read loop exits
	log    zerolog.Logger

	mu    sync.Mutex
	bound map[string]*typedChannel[T]
}

// ID returns the unique subscription id.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Name returns the diagnostic label, if any.
func (s *Subscription[T]) Name() string {
	return s.subName
}

// Pattern returns the channel name or wildcard pattern subscribed to.
func (s *Subscription[T]) Pattern() string {
	return s.pattern
}

// State returns the current lifecycle state.
func (s *Subscription[T]) State() SubscriptionState {
	switch s.state.Load() {
	case subDetached:
		return StateDetached
	case subFaulted:
		return StateFaulted
	default:
		return StateActive
	}
}

// Stats returns a read-only snapshot of the subscription counters.
func (s *Subscription[T]) Stats() stats.SubscriptionStats {
	return s.tracker.Snapshot()
}

// Info returns the diagnostic snapshot the registry exposes.
func (s *Subscription[T]) Info() SubscriptionInfo {
	return SubscriptionInfo{
		ID:      s.id,
		Name:    s.subName,
		Pattern: s.pattern,
		State:   s.State(),
		Stats:   s.tracker.Snapshot(),
	}
}

// Done is closed when the read loop has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close disposes the subscription: the read loop is cancelled, the
// in-flight handler completes naturally, and the subscription is removed
// from every bound channel. Idempotent; double-close succeeds.
func (s *Subscription[T]) Close() error {
	if !s.state.CompareAndSwap(subActive, subDetached) {
		return nil
	}
	s.teardown()
	s.log.Debug().Msg("subscription detached")
	return nil
}

// markDetached is the shutdown path: terminal state without channel
// detachment (the channel is being torn down) or lifecycle emission.
func (s *Subscription[T]) markDetached() {
	if !s.state.CompareAndSwap(subActive, subDetached) {
		return
	}
	s.cancel()
	s.queue.close()
	s.mu.Lock()
	s.bound = nil
	s.mu.Unlock()
}

// fault transitions the subscription to Faulted and stops deliveries.
func (s *Subscription[T]) fault(cause error) {
	if !s.state.CompareAndSwap(subActive, subFaulted) {
		return
	}
	s.log.Error().Err(cause).Msg("subscription faulted")
	s.bus.reportError(ErrorReport{
		ErrorType:      ErrorKindOther,
		Severity:       SeverityError,
		SubscriptionID: s.id,
		Message:        cause.Error(),
	})
	s.teardown()
}

func (s *Subscription[T]) teardown() {
	s.cancel()
	s.queue.close()
	s.bus.wildcards.remove(s.id)

	s.mu.Lock()
	bound := s.bound
	s.bound = nil
	s.mu.Unlock()

	for _, c := range bound {
		c.detachSub(s.id)
		s.bus.emitLifecycle(LifecycleEvent{
			Type:             LifecycleSubscriptionRemoved,
			Channel:          c.name(),
			SubscriptionID:   s.id,
			SubscriptionName: s.subName,
		})
	}
}

// addBound records a channel this subscription is attached to, for later
// detachment. Returns false when the subscription is no longer active.
func (s *Subscription[T]) addBound(c *typedChannel[T]) bool {
	s.mu.Lock()
	if s.bound == nil {
		s.mu.Unlock()
		return false
	}
	s.bound[c.name()] = c
	s.mu.Unlock()
	return true
}

// offer is the publisher-side entry point. Keyed messages go through the
// conflation map when conflation is enabled; everything else goes to the
// buffer under the slow-consumer strategy.
func (s *Subscription[T]) offer(m Message[T]) error {
	if s.state.Load() != subActive {
		return nil
	}
	if s.conf != nil && m.Key != "" {
		s.conf.offer(m)
		s.tracker.KeyedOffered()
		return nil
	}
	return s.enqueue(m)
}

// enqueueReplay feeds a state-store snapshot message straight into the
// buffer, bypassing conflation so replay precedes live keyed traffic, and
// bypassing the capacity bound: replay runs under the channel lock (for a
// wildcard binding to a later channel, while the read loop is already
// running), so it must not wait for space.
func (s *Subscription[T]) enqueueReplay(m Message[T]) {
	s.queue.forceEnqueue(queueItem[T]{msg: m, enqueuedAt: time.Now()})
	s.tracker.Enqueued()
}

func (s *Subscription[T]) enqueue(m Message[T]) error {
	it := queueItem[T]{msg: m, enqueuedAt: time.Now()}

	switch s.opts.strategy {
	case FailSubscriber:
		if s.queue.tryEnqueue(it) {
			s.tracker.Enqueued()
			return nil
		}
		s.tracker.Dropped()
		s.fault(fmt.Errorf("crossbar: buffer overflow on subscription %s (channel %s)", s.id, m.Channel))
		return nil

	case WaitForSpace:
		if err := s.queue.waitEnqueue(it, s.bus.ctx.Done()); err != nil {
			return err
		}
		s.tracker.Enqueued()
		return nil

	default: // SkipUpdates
		if s.queue.tryEnqueue(it) {
			s.tracker.Enqueued()
			return nil
		}
		s.tracker.Dropped()
		s.log.Debug().
			Str("channel", m.Channel).
			Int64("message_id", m.Id).
			Msg("buffer full, message dropped")
		return nil
	}
}

// run is the read loop: the single consumer of the buffer. It drains the
// conflation map on each flush tick, dequeues one message at a time,
// records latency and service time, and invokes the handler serially.
func (s *Subscription[T]) run() {
	defer close(s.done)

	var flushC <-chan time.Time
	if s.conf != nil {
		ticker := time.NewTicker(s.conf.interval)
		defer ticker.Stop()
		flushC = ticker.C
	}

	for {
		// A steady buffer stream must not starve the flush tick.
		select {
		case <-flushC:
			s.flushConflation()
		default:
		}

		if it, ok := s.queue.tryDequeue(); ok {
			s.process(it)
			continue
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.queue.ready:
		case <-flushC:
			s.flushConflation()
		}
	}
}

// flushConflation moves pending keyed messages into the buffer in FIFO key
// order. The flush runs on the read loop, so a full buffer is drained by
// this same goroutine next iteration; WaitForSpace must not block here or
// the consumer would wait on itself.
func (s *Subscription[T]) flushConflation() {
	msgs := s.conf.drain()
	if len(msgs) == 0 {
		return
	}
	for _, m := range msgs {
		it := queueItem[T]{msg: m, enqueuedAt: time.Now()}
		if s.queue.tryEnqueue(it) {
			s.tracker.Enqueued()
			continue
		}
		s.tracker.Dropped()
		if s.opts.strategy == FailSubscriber {
			s.fault(fmt.Errorf("crossbar: buffer overflow on conflation flush, subscription %s", s.id))
			return
		}
	}
	s.tracker.KeyedDelivered(int64(len(msgs)))
}

func (s *Subscription[T]) process(it queueItem[T]) {
	s.tracker.Dequeued(time.Since(it.enqueuedAt))
	start := time.Now()
	s.invoke(it.msg)
	s.tracker.Processed(time.Since(start))
}

// invoke guards one handler call with the optional soft deadline. On
// expiry the timeout is recorded and the loop proceeds; the handler's
// continuation keeps running unobserved.
func (s *Subscription[T]) invoke(m Message[T]) {
	if s.opts.handlerTimeout <= 0 {
		if err := s.callHandler(m); err != nil {
			s.recordFault(m, err)
		}
		return
	}

	result := make(chan error, 1)
	go func() {
		result <- s.callHandler(m)
	}()

	timer := time.NewTimer(s.opts.handlerTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			s.recordFault(m, err)
		}
	case <-timer.C:
		s.recordTimeout(m)
	}
}

func (s *Subscription[T]) callHandler(m Message[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(s.ctx, m)
}

func (s *Subscription[T]) recordFault(m Message[T], err error) {
	s.tracker.Fault()
	s.log.Error().
		Err(err).
		Str("channel", m.Channel).
		Int64("message_id", m.Id).
		Msg("handler fault")
	s.bus.reportError(ErrorReport{
		ErrorType:      ErrorKindOther,
		Severity:       SeverityError,
		ChannelName:    m.Channel,
		SubscriptionID: s.id,
		Message:        err.Error(),
		Metadata: map[string]string{
			"message_id": fmt.Sprintf("%d", m.Id),
			"key":        m.Key,
		},
	})
}

func (s *Subscription[T]) recordTimeout(m Message[T]) {
	s.tracker.Timeout()
	s.log.Warn().
		Str("channel", m.Channel).
		Int64("message_id", m.Id).
		Dur("deadline", s.opts.handlerTimeout).
		Msg("handler timeout")

	if s.opts.onTimeout != nil {
		s.safeOnTimeout(TimeoutFailure{
			SubscriptionID:   s.id,
			SubscriptionName: s.subName,
			Channel:          m.Channel,
			MessageId:        m.Id,
			CorrelationId:    m.CorrelationId,
			Key:              m.Key,
			Deadline:         s.opts.handlerTimeout,
		})
	}

	s.bus.reportError(ErrorReport{
		ErrorType:      ErrorKindTimeout,
		Severity:       SeverityWarning,
		ChannelName:    m.Channel,
		SubscriptionID: s.id,
		Message:        fmt.Sprintf("handler exceeded %v deadline", s.opts.handlerTimeout),
		Metadata: map[string]string{
			"message_id": fmt.Sprintf("%d", m.Id),
			"key":        m.Key,
		},
	})
}

func (s *Subscription[T]) safeOnTimeout(f TimeoutFailure) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("timeout callback panicked")
		}
	}()
	s.opts.onTimeout(f)
}

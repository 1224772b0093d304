package crossbar

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/crossbar/pkg/stats"
)

// ChannelInfo is a read-only snapshot of one channel.
type ChannelInfo struct {
	Name               string
	BodyType           string
	SubscriptionCount  int
	StoredMessageCount int64
	Stats              stats.ChannelStats
}

// anyChannel is the type-erased channel handle held by the registry. The
// concrete *typedChannel[T] carries the body type tag; generic entry points
// recover the typed view by assertion.
type anyChannel interface {
	name() string
	bodyType() reflect.Type
	info() ChannelInfo
	subscriptions() []SubscriptionInfo
	detachSub(subID string)
	close()
}

// typedChannel is the per-channel fan-out root: it owns the publish-order
// id counter, the state store, the subscriber set and the publish counters.
type typedChannel[T any] struct {
	chName  string
	typ     reflect.Type
	bus     *CrossBar
	idSeq   atomic.Int64
	state   *stateStore[T]
	tracker *stats.ChannelTracker

	mu   sync.RWMutex
	subs []*Subscription[T] // copy-on-write; publish iterates a stable slice
}

func newTypedChannel[T any](bus *CrossBar, name string) *typedChannel[T] {
	return &typedChannel[T]{
		chName:  name,
		typ:     reflect.TypeOf((*T)(nil)).Elem(),
		bus:     bus,
		state:   newStateStore[T](),
		tracker: stats.NewChannelTracker(bus.cfg.Stats),
	}
}

func (c *typedChannel[T]) name() string {
	return c.chName
}

func (c *typedChannel[T]) bodyType() reflect.Type {
	return c.typ
}

// publish constructs the message, optionally updates the state store, and
// offers the message to a snapshot of the current subscriber set. It
// completes once every live subscriber has accepted or deflected the
// message per its slow-consumer policy; it never blocks on slow consumers
// except under WaitForSpace.
func (c *typedChannel[T]) publish(body T, p publishParams) error {
	m := Message[T]{
		Id:            c.idSeq.Add(1),
		CorrelationId: p.correlationID,
		Key:           p.key,
		From:          p.from,
		Channel:       c.chName,
		Inception:     time.Now(),
		Body:          body,
	}

	if p.store && m.Key != "" {
		c.state.upsert(m)
	}

	c.mu.RLock()
	subs := c.subs
	c.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if err := s.offer(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.tracker.Published(p.from)

	if c.bus.cfg.EnableMessageTracing {
		c.bus.log.Trace().
			Str("channel", c.chName).
			Int64("message_id", m.Id).
			Int64("correlation_id", m.CorrelationId).
			Str("key", m.Key).
			Str("from", m.From).
			Msg("message trace")
	}
	if c.bus.cfg.EnablePublishLogging {
		c.bus.log.Debug().
			Str("channel", c.chName).
			Int64("message_id", m.Id).
			Int("subscribers", len(subs)).
			Msg("published")
	}

	if firstErr != nil {
		return fmt.Errorf("crossbar: publish %q: %w", c.chName, firstErr)
	}
	return nil
}

// attach adds s to the subscriber set. With fetchState, the channel's
// current state snapshot is enqueued to s first; holding the write lock
// here keeps publishers from interleaving between snapshot and attach, so
// the subscriber transitions seamlessly from snapshot to live.
func (c *typedChannel[T]) attach(s *Subscription[T]) {
	c.mu.Lock()
	// Idempotent: a wildcard subscription can race channel creation and
	// reach the same channel through both the index and the registry scan.
	for _, existing := range c.subs {
		if existing.id == s.id {
			c.mu.Unlock()
			return
		}
	}
	if s.opts.fetchState {
		for _, m := range c.state.snapshot() {
			s.enqueueReplay(m)
		}
	}
	next := make([]*Subscription[T], 0, len(c.subs)+1)
	next = append(next, c.subs...)
	next = append(next, s)
	c.subs = next
	c.mu.Unlock()
}

// detachSub removes the subscription with the given id, if attached.
func (c *typedChannel[T]) detachSub(subID string) {
	c.mu.Lock()
	next := make([]*Subscription[T], 0, len(c.subs))
	for _, s := range c.subs {
		if s.id != subID {
			next = append(next, s)
		}
	}
	c.subs = next
	c.mu.Unlock()
}

func (c *typedChannel[T]) subscriberSnapshot() []*Subscription[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs
}

func (c *typedChannel[T]) info() ChannelInfo {
	c.mu.RLock()
	n := len(c.subs)
	c.mu.RUnlock()
	return ChannelInfo{
		Name:               c.chName,
		BodyType:           c.typ.String(),
		SubscriptionCount:  n,
		StoredMessageCount: c.state.len(),
		Stats:              c.tracker.Snapshot(),
	}
}

func (c *typedChannel[T]) subscriptions() []SubscriptionInfo {
	subs := c.subscriberSnapshot()
	out := make([]SubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Info())
	}
	return out
}

// close marks every attached subscription detached and clears the state
// store. Called only from CrossBar shutdown.
func (c *typedChannel[T]) close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.markDetached()
	}
	c.state.clear()
}

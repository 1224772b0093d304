/*
Package crossbar implements an in-process publish/subscribe message bus
optimized for high-throughput fan-out of typed messages.

Producers publish to named channels and independent consumers subscribe,
each with its own private buffered queue, so producers and consumers never
block one another. Channels are typed: the body type observed on first use
is the only type ever accepted. Subscriptions can bound their buffers with
a slow-consumer policy, conflate keyed updates within a flush interval, and
replay a channel's last-value-per-key state on attach.

# Architecture

	┌───────────────────────── CROSSBAR ───────────────────────────┐
	│                                                               │
	│  Publisher ──► Channel Registry ──► Typed Channel             │
	│                (name → channel,       │                       │
	│                 type tag check)       ├─► State Store         │
	│                                       │   (last value / key)  │
	│                                       │                       │
	│                                       ▼                       │
	│                          Subscriber Set (snapshot iterate)    │
	│                           │           │           │           │
	│                           ▼           ▼           ▼           │
	│                        Buffer      Buffer      Conflation     │
	│                        (bounded,   (bounded)   Map + Order    │
	│                         policy)       │           │ flush     │
	│                           │           │           ▼  tick     │
	│                           ▼           ▼        Buffer         │
	│                        Read Loop   Read Loop   Read Loop      │
	│                           │           │           │           │
	│                           ▼           ▼           ▼           │
	│                        Handler     Handler     Handler        │
	│                        (serial, soft timeout guard)           │
	└───────────────────────────────────────────────────────────────┘

# Core Components

Channel Registry:
  - getOrCreate with lock-free load on the hot path
  - body type fixed on first use; mismatches fail with TypeMismatchError
  - name alphabet: letters, digits, '.', '_', '-' and the system prefix

Typed Channel:
  - per-channel monotonic message id
  - snapshot-iterated subscriber set (copy-on-write slice)
  - publish stats: total, rate EWMA, last publish time and publisher tag

Subscription Pipeline:
  - private MPSC buffer, bounded or unbounded
  - slow-consumer strategies: SkipUpdates, FailSubscriber, WaitForSpace
  - single read loop; handlers invoked serially
  - soft handler timeout: recorded and reported, handler never aborted
  - terminal states: Detached (disposed) and Faulted

Conflation Engine:
  - latest pending message per key plus first-arrival key order
  - periodic flush into the buffer, FIFO by first arrival

State Store:
  - last value per key for messages published with store=true
  - snapshots never observe partial writes and never block upserts

Wildcard Router:
  - '*' matches one segment, terminal '>' matches the remaining suffix
  - subscriptions bind to existing matches and back-bind to channels
    created later, before the creating publish completes

System Channels:
  - $channel.lifecycle: ChannelCreated, SubscriptionAdded,
    SubscriptionRemoved (when lifecycle tracking is enabled)
  - $errors: ErrorReport records for runtime failures, which are never
    propagated to publishers

# Usage

	bus := crossbar.New()
	defer bus.Close()

	sub, err := crossbar.Subscribe(bus, "prices.nyse",
		func(ctx context.Context, m crossbar.Message[Tick]) error {
			fmt.Println(m.Key, m.Body)
			return nil
		},
		crossbar.WithBufferCapacity(512),
		crossbar.WithConflationInterval(250*time.Millisecond),
		crossbar.WithFetchState(),
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = crossbar.Publish(bus, "prices.nyse", Tick{Px: 187.2},
		crossbar.WithKey("AAPL"), crossbar.WithStore())

# Ordering Guarantees

Within one (channel, key) a subscriber observes messages in publish order,
even with conflation active. Across keys, conflated delivery follows the
first-arrival order of each key per flush tick. Across subscriptions there
are no ordering guarantees.

# Integration Points

  - pkg/stats: rate, latency, service-time and conflation-ratio trackers
  - pkg/metrics: Prometheus export of bus snapshots
  - pkg/log: structured logging, publish tracing
  - cmd/crossbar: demo feed and benchmark CLI
*/
package crossbar

/*
Package stats provides fixed-memory throughput and latency trackers for
CrossBar channels and subscriptions.

The package avoids per-message allocations on the delivery hot path: counters
are atomics, rates fold pending marks into an exponentially weighted moving
average once per second, and percentiles use a streaming estimator with a
handful of float64 fields instead of a sample reservoir.

# Core Components

Rate:
  - Events-per-second EWMA
  - Mark() on the hot path is a counter increment
  - Smoothing window configured in ticks (seconds)

Quantile:
  - Single-percentile streaming estimator
  - Stochastic gradient steps on the pinball loss
  - Step size adapts to the observed deviation scale

Distribution:
  - count/min/max/avg plus one Quantile
  - Observations in seconds (latency, service time)

SubscriptionTracker:
  - enqueue/dequeue/process rates
  - latency (enqueue to dequeue) and service time (dequeue to completion)
  - queue depth, dropped, timeout, fault counters
  - conflation ratio: 1 - delivered/offered for keyed messages

ChannelTracker:
  - publish rate, total published, last publish time and publisher tag

# Usage

	tr := stats.NewSubscriptionTracker(stats.DefaultOptions())
	tr.Enqueued()
	tr.Dequeued(time.Since(enqueuedAt))
	tr.Processed(time.Since(start))
	snap := tr.Snapshot()

Snapshots are value copies; holding one never blocks the hot path.
*/
package stats

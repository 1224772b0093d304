package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Options configures rate smoothing and percentile estimation.
type Options struct {
	Percentile     float64 // percentile tracked by distributions, e.g. 0.9
	Alpha          float64 // step adaptation speed for the quantile estimator
	Delta          float64 // initial quantile step size, in seconds
	EwmaWindowSize int     // smoothing window for rates, in ticks
}

// DefaultOptions returns the stats parameters used when a subscription does
// not override them.
func DefaultOptions() Options {
	return Options{
		Percentile:     0.9,
		Alpha:          0.05,
		Delta:          0.001,
		EwmaWindowSize: 10,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Percentile <= 0 || o.Percentile >= 1 {
		o.Percentile = d.Percentile
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = d.Alpha
	}
	if o.Delta <= 0 {
		o.Delta = d.Delta
	}
	if o.EwmaWindowSize < 1 {
		o.EwmaWindowSize = d.EwmaWindowSize
	}
	return o
}

// Distribution tracks count/min/max/avg plus one streaming percentile of a
// series of observations. Observations are in seconds.
type Distribution struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
	q     *Quantile
}

// NewDistribution creates a distribution tracker.
func NewDistribution(opts Options) *Distribution {
	opts = opts.normalized()
	return &Distribution{
		q: NewQuantile(opts.Percentile, opts.Alpha, opts.Delta),
	}
}

// Observe records one sample.
func (d *Distribution) Observe(v float64) {
	d.mu.Lock()
	d.count++
	d.sum += v
	if d.count == 1 || v < d.min {
		d.min = v
	}
	if d.count == 1 || v > d.max {
		d.max = v
	}
	d.mu.Unlock()
	d.q.Observe(v)
}

// DistributionSnapshot is a point-in-time view of a Distribution.
type DistributionSnapshot struct {
	Count      int64
	Min        float64
	Max        float64
	Avg        float64
	Percentile float64
	P          float64 // which percentile the estimate is for
}

// Snapshot returns a consistent view of the distribution.
func (d *Distribution) Snapshot() DistributionSnapshot {
	d.mu.Lock()
	s := DistributionSnapshot{
		Count: d.count,
		Min:   d.min,
		Max:   d.max,
	}
	if d.count > 0 {
		s.Avg = d.sum / float64(d.count)
	}
	d.mu.Unlock()
	s.Percentile = d.q.Value()
	s.P = d.q.Percentile()
	return s
}

// SubscriptionStats is a read-only snapshot of one subscription's counters.
type SubscriptionStats struct {
	EnqueueRate     float64
	DequeueRate     float64
	ProcessRate     float64
	Latency         DistributionSnapshot // enqueue to dequeue
	ServiceTime     DistributionSnapshot // dequeue to handler completion
	QueueDepth      int64
	EnqueuedCount   int64
	ProcessedCount  int64
	DroppedCount    int64
	TimeoutCount    int64
	FaultCount      int64
	ConflationRatio float64 // 1 - delivered/offered for keyed messages
}

// SubscriptionTracker aggregates the per-subscription counters updated on
// the delivery hot path. Counter updates are atomic; distributions and rates
// take short internal locks.
type SubscriptionTracker struct {
	enqueueRate *Rate
	dequeueRate *Rate
	processRate *Rate
	latency     *Distribution
	service     *Distribution

	queueDepth     atomic.Int64
	enqueued       atomic.Int64
	processed      atomic.Int64
	dropped        atomic.Int64
	timeouts       atomic.Int64
	faults         atomic.Int64
	keyedOffered   atomic.Int64
	keyedDelivered atomic.Int64
}

// NewSubscriptionTracker creates a tracker with the given options.
func NewSubscriptionTracker(opts Options) *SubscriptionTracker {
	opts = opts.normalized()
	return &SubscriptionTracker{
		enqueueRate: NewRate(opts.EwmaWindowSize),
		dequeueRate: NewRate(opts.EwmaWindowSize),
		processRate: NewRate(opts.EwmaWindowSize),
		latency:     NewDistribution(opts),
		service:     NewDistribution(opts),
	}
}

// Enqueued records a message accepted into the buffer.
func (t *SubscriptionTracker) Enqueued() {
	t.enqueued.Add(1)
	t.queueDepth.Add(1)
	t.enqueueRate.Mark(1)
}

// Dequeued records a message leaving the buffer after waiting for latency.
func (t *SubscriptionTracker) Dequeued(latency time.Duration) {
	t.queueDepth.Add(-1)
	t.dequeueRate.Mark(1)
	t.latency.Observe(latency.Seconds())
}

// Processed records a completed handler invocation.
func (t *SubscriptionTracker) Processed(service time.Duration) {
	t.processed.Add(1)
	t.processRate.Mark(1)
	t.service.Observe(service.Seconds())
}

// Dropped records a message discarded because the buffer was full.
func (t *SubscriptionTracker) Dropped() {
	t.dropped.Add(1)
}

// Timeout records a handler deadline expiry.
func (t *SubscriptionTracker) Timeout() {
	t.timeouts.Add(1)
}

// Fault records an unrecovered handler failure.
func (t *SubscriptionTracker) Fault() {
	t.faults.Add(1)
}

// KeyedOffered records a keyed message entering the conflation map.
func (t *SubscriptionTracker) KeyedOffered() {
	t.keyedOffered.Add(1)
}

// KeyedDelivered records n keyed messages flushed out of the conflation map.
func (t *SubscriptionTracker) KeyedDelivered(n int64) {
	t.keyedDelivered.Add(n)
}

// QueueDepth returns the current buffer depth.
func (t *SubscriptionTracker) QueueDepth() int64 {
	return t.queueDepth.Load()
}

// DroppedCount returns the number of messages discarded so far.
func (t *SubscriptionTracker) DroppedCount() int64 {
	return t.dropped.Load()
}

// TimeoutCount returns the number of handler timeouts so far.
func (t *SubscriptionTracker) TimeoutCount() int64 {
	return t.timeouts.Load()
}

// Snapshot returns a read-only view of all counters.
func (t *SubscriptionTracker) Snapshot() SubscriptionStats {
	s := SubscriptionStats{
		EnqueueRate:    t.enqueueRate.Value(),
		DequeueRate:    t.dequeueRate.Value(),
		ProcessRate:    t.processRate.Value(),
		Latency:        t.latency.Snapshot(),
		ServiceTime:    t.service.Snapshot(),
		QueueDepth:     t.queueDepth.Load(),
		EnqueuedCount:  t.enqueued.Load(),
		ProcessedCount: t.processed.Load(),
		DroppedCount:   t.dropped.Load(),
		TimeoutCount:   t.timeouts.Load(),
		FaultCount:     t.faults.Load(),
	}
	offered := t.keyedOffered.Load()
	if offered > 0 {
		s.ConflationRatio = 1 - float64(t.keyedDelivered.Load())/float64(offered)
	}
	return s
}

// ChannelStats is a read-only snapshot of one channel's publish counters.
type ChannelStats struct {
	PublishRate     float64
	TotalPublished  int64
	LastPublishedAt time.Time
	LastFrom        string
}

// ChannelTracker aggregates the per-channel publish counters.
type ChannelTracker struct {
	rate     *Rate
	total    atomic.Int64
	lastAt   atomic.Int64 // unix nanos
	lastFrom atomic.Value // string
}

// NewChannelTracker creates a tracker with the given options.
func NewChannelTracker(opts Options) *ChannelTracker {
	opts = opts.normalized()
	return &ChannelTracker{rate: NewRate(opts.EwmaWindowSize)}
}

// Published records one publish from the given source tag.
func (t *ChannelTracker) Published(from string) {
	t.total.Add(1)
	t.rate.Mark(1)
	t.lastAt.Store(time.Now().UnixNano())
	if from != "" {
		t.lastFrom.Store(from)
	}
}

// TotalPublished returns the number of messages published so far.
func (t *ChannelTracker) TotalPublished() int64 {
	return t.total.Load()
}

// Snapshot returns a read-only view of the publish counters.
func (t *ChannelTracker) Snapshot() ChannelStats {
	s := ChannelStats{
		PublishRate:    t.rate.Value(),
		TotalPublished: t.total.Load(),
	}
	if ns := t.lastAt.Load(); ns > 0 {
		s.LastPublishedAt = time.Unix(0, ns)
	}
	if from, ok := t.lastFrom.Load().(string); ok {
		s.LastFrom = from
	}
	return s
}

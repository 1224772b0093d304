package metrics

import (
	"time"

	"github.com/cuemby/crossbar/pkg/crossbar"
	"github.com/cuemby/crossbar/pkg/log"
)

// Collector periodically copies CrossBar snapshots into the Prometheus
// gauges. The bus itself stays metrics-agnostic; the collector only reads
// its public snapshot API.
type Collector struct {
	bus      *crossbar.CrossBar
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector for the given bus.
func NewCollector(bus *crossbar.CrossBar) *Collector {
	return &Collector{
		bus:      bus,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
	log.WithComponent("collector").Debug().Dur("interval", c.interval).Msg("metrics collector started")
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectOverview()
	c.collectChannels()
}

func (c *Collector) collectOverview() {
	ov := c.bus.Overview()

	ChannelsTotal.Set(float64(ov.TotalChannels))
	SubscriptionsTotal.Set(float64(ov.TotalSubscriptions))
	WildcardSubscriptionsTotal.Set(float64(ov.WildcardSubscriptions))
	MessagesPublishedTotal.Set(float64(ov.TotalPublished))
	MessagesProcessedTotal.Set(float64(ov.TotalProcessed))
	HandlerTimeoutsTotal.Set(float64(ov.TotalTimedOut))
	BackloggedSubscriptions.Set(float64(ov.BackloggedSubscriptions))
	AggregatePublishRate.Set(ov.PublishRate)
	AggregateProcessRate.Set(ov.ProcessRate)
}

func (c *Collector) collectChannels() {
	for _, ci := range c.bus.GetChannels() {
		ChannelPublishRate.WithLabelValues(ci.Name).Set(ci.Stats.PublishRate)
		ChannelPublishedTotal.WithLabelValues(ci.Name).Set(float64(ci.Stats.TotalPublished))
		ChannelSubscriptions.WithLabelValues(ci.Name).Set(float64(ci.SubscriptionCount))
		ChannelStoredMessages.WithLabelValues(ci.Name).Set(float64(ci.StoredMessageCount))

		subs, err := c.bus.GetChannelSubscriptions(ci.Name)
		if err != nil {
			continue
		}
		for _, si := range subs {
			label := si.Name
			if label == "" {
				label = si.ID
			}
			SubscriptionQueueDepth.WithLabelValues(ci.Name, label).Set(float64(si.Stats.QueueDepth))
			SubscriptionDroppedTotal.WithLabelValues(ci.Name, label).Set(float64(si.Stats.DroppedCount))
			SubscriptionConflationRatio.WithLabelValues(ci.Name, label).Set(si.Stats.ConflationRatio)
		}
	}
}

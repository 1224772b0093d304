package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bus metrics
	ChannelsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_channels_total",
			Help: "Total number of channels in the registry",
		},
	)

	SubscriptionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_subscriptions_total",
			Help: "Total number of live subscriptions",
		},
	)

	WildcardSubscriptionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_wildcard_subscriptions_total",
			Help: "Total number of live wildcard subscriptions",
		},
	)

	MessagesPublishedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_messages_published_total",
			Help: "Total messages published across all channels",
		},
	)

	MessagesProcessedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_messages_processed_total",
			Help: "Total messages processed across all subscriptions",
		},
	)

	HandlerTimeoutsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_handler_timeouts_total",
			Help: "Total handler deadline expiries across all subscriptions",
		},
	)

	BackloggedSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_backlogged_subscriptions",
			Help: "Subscriptions with queue depth greater than zero",
		},
	)

	AggregatePublishRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_publish_rate",
			Help: "Aggregate publish rate across all channels in messages per second",
		},
	)

	AggregateProcessRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossbar_process_rate",
			Help: "Aggregate handler processing rate in messages per second",
		},
	)

	// Per-channel metrics
	ChannelPublishRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_channel_publish_rate",
			Help: "Publish rate per channel in messages per second",
		},
		[]string{"channel"},
	)

	ChannelPublishedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_channel_published_total",
			Help: "Total messages published per channel",
		},
		[]string{"channel"},
	)

	ChannelSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_channel_subscriptions",
			Help: "Attached subscriptions per channel",
		},
		[]string{"channel"},
	)

	ChannelStoredMessages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_channel_stored_messages",
			Help: "State store entries per channel",
		},
		[]string{"channel"},
	)

	// Per-subscription metrics
	SubscriptionQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_subscription_queue_depth",
			Help: "Buffered messages per subscription",
		},
		[]string{"channel", "subscription"},
	)

	SubscriptionDroppedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_subscription_dropped_total",
			Help: "Messages dropped per subscription because its buffer was full",
		},
		[]string{"channel", "subscription"},
	)

	SubscriptionConflationRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossbar_subscription_conflation_ratio",
			Help: "1 - delivered/offered for keyed messages per subscription",
		},
		[]string{"channel", "subscription"},
	)
)

func init() {
	// Register all metrics with Prometheus
	prometheus.MustRegister(ChannelsTotal)
	prometheus.MustRegister(SubscriptionsTotal)
	prometheus.MustRegister(WildcardSubscriptionsTotal)
	prometheus.MustRegister(MessagesPublishedTotal)
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(HandlerTimeoutsTotal)
	prometheus.MustRegister(BackloggedSubscriptions)
	prometheus.MustRegister(AggregatePublishRate)
	prometheus.MustRegister(AggregateProcessRate)
	prometheus.MustRegister(ChannelPublishRate)
	prometheus.MustRegister(ChannelPublishedTotal)
	prometheus.MustRegister(ChannelSubscriptions)
	prometheus.MustRegister(ChannelStoredMessages)
	prometheus.MustRegister(SubscriptionQueueDepth)
	prometheus.MustRegister(SubscriptionDroppedTotal)
	prometheus.MustRegister(SubscriptionConflationRatio)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

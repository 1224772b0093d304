package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crossbar/pkg/crossbar"
)

// TestCollectorPopulatesGauges tests one collect cycle against a live bus
func TestCollectorPopulatesGauges(t *testing.T) {
	bus := crossbar.New()
	defer bus.Close()

	var processed atomic.Int64
	sub, err := crossbar.Subscribe(bus, "metrics.test",
		func(ctx context.Context, m crossbar.Message[int]) error {
			processed.Add(1)
			return nil
		},
		crossbar.WithSubscriptionName("gauge-check"))
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, crossbar.Publish(bus, "metrics.test", i,
			crossbar.WithKey("k"), crossbar.WithStore()))
	}

	deadline := time.Now().Add(5 * time.Second)
	for processed.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, int64(5), processed.Load())

	c := NewCollector(bus)
	c.collect()

	assert.Equal(t, 1.0, testutil.ToFloat64(ChannelsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(SubscriptionsTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(MessagesPublishedTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(MessagesProcessedTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(ChannelPublishedTotal.WithLabelValues("metrics.test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ChannelStoredMessages.WithLabelValues("metrics.test")))
	assert.Equal(t, 0.0, testutil.ToFloat64(SubscriptionQueueDepth.WithLabelValues("metrics.test", "gauge-check")))
}

// TestCollectorStartStop tests the polling lifecycle
func TestCollectorStartStop(t *testing.T) {
	bus := crossbar.New()
	defer bus.Close()

	c := NewCollector(bus)
	c.Start()
	c.Stop()
}

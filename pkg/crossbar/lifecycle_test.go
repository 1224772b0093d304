package crossbar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLifecycleEvents tests channel and subscription lifecycle emission
func TestLifecycleEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLifecycleTracking = true
	bus := NewWithConfig(cfg)
	defer bus.Close()

	var mu sync.Mutex
	var events []LifecycleEvent

	watcher, err := Subscribe(bus, bus.LifecycleChannelName(),
		func(ctx context.Context, m Message[LifecycleEvent]) error {
			mu.Lock()
			events = append(events, m.Body)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, Publish(bus, "tracked", 1))

	sub, err := Subscribe(bus, "tracked",
		func(ctx context.Context, m Message[int]) error { return nil },
		WithSubscriptionName("observer"))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, "created and added events")

	require.NoError(t, sub.Close())

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 3
	}, "removed event")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, LifecycleChannelCreated, events[0].Type)
	assert.Equal(t, "tracked", events[0].Channel)
	assert.Equal(t, LifecycleSubscriptionAdded, events[1].Type)
	assert.Equal(t, "observer", events[1].SubscriptionName)
	assert.Equal(t, LifecycleSubscriptionRemoved, events[2].Type)
	assert.Equal(t, sub.ID(), events[2].SubscriptionID)
}

// TestLifecycleDisabledByDefault tests that no lifecycle channel appears
func TestLifecycleDisabledByDefault(t *testing.T) {
	bus := New()
	defer bus.Close()

	require.NoError(t, Publish(bus, "untracked", 1))

	for _, ci := range bus.GetChannels() {
		assert.NotEqual(t, bus.LifecycleChannelName(), ci.Name)
	}
}

// TestErrorReports tests the error report stream
func TestErrorReports(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var reports []ErrorReport

	watcher, err := Subscribe(bus, bus.ErrorChannelName(),
		func(ctx context.Context, m Message[ErrorReport]) error {
			mu.Lock()
			reports = append(reports, m.Body)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	defer watcher.Close()

	sub, err := Subscribe(bus, "sluggish",
		func(ctx context.Context, m Message[int]) error {
			time.Sleep(300 * time.Millisecond)
			return nil
		},
		WithHandlerTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Publish(bus, "sluggish", 1))

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) >= 1
	}, "timeout report")

	mu.Lock()
	defer mu.Unlock()
	r := reports[0]
	assert.Equal(t, ErrorKindTimeout, r.ErrorType)
	assert.Equal(t, SeverityWarning, r.Severity)
	assert.Equal(t, "sluggish", r.ChannelName)
	assert.Equal(t, sub.ID(), r.SubscriptionID)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.TimestampUtc.IsZero())
}

// TestSystemChannelNames tests the well-known names
func TestSystemChannelNames(t *testing.T) {
	bus := New()
	defer bus.Close()

	assert.Equal(t, "$channel.lifecycle", bus.LifecycleChannelName())
	assert.Equal(t, "$errors", bus.ErrorChannelName())
	assert.True(t, bus.Config().isSystemChannel(bus.ErrorChannelName()))
}

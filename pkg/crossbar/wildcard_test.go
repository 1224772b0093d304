package crossbar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMatchPattern tests the pattern matcher
func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"orders.nyse", "orders.nyse", true},
		{"orders.nyse", "orders.lse", false},
		{"orders.*", "orders.nyse", true},
		{"orders.*", "orders", false},
		{"orders.*", "orders.nyse.filled", false},
		{"orders.*.filled", "orders.A.filled", true},
		{"orders.*.filled", "orders.B.new", false},
		{"orders.*.filled", "orders.A.B.filled", false},
		{"orders.>", "orders.nyse", true},
		{"orders.>", "orders.nyse.filled", true},
		{"orders.>", "orders", false},
		{">", "anything", true},
		{">", "a.b.c", true},
		{"*", "one", true},
		{"*", "one.two", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.name))
		})
	}
}

// TestPatternValidation tests wildcard pattern rules
func TestPatternValidation(t *testing.T) {
	cfg := DefaultConfig()

	assert.NoError(t, cfg.validatePattern("orders.*.filled"))
	assert.NoError(t, cfg.validatePattern("orders.>"))
	assert.NoError(t, cfg.validatePattern("plain.channel"))
	assert.Error(t, cfg.validatePattern("orders.>.filled"))
	assert.Error(t, cfg.validatePattern("orders..filled"))
	assert.Error(t, cfg.validatePattern("orders.bad segment.*"))
}

// TestWildcardRouting tests that only matching channels deliver
func TestWildcardRouting(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var got []string

	sub, err := Subscribe(bus, "orders.*.filled", func(ctx context.Context, m Message[string]) error {
		mu.Lock()
		got = append(got, m.Channel+":"+m.Body)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Publish(bus, "orders.A.filled", "yes"))
	require.NoError(t, Publish(bus, "orders.B.new", "no"))

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, "wildcard delivery")

	// Give the non-matching publish time to (incorrectly) arrive.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"orders.A.filled:yes"}, got)
}

// TestWildcardBindsExistingChannels tests binding at creation time
func TestWildcardBindsExistingChannels(t *testing.T) {
	bus := New()
	defer bus.Close()

	require.NoError(t, Publish(bus, "metrics.cpu", 1))
	require.NoError(t, Publish(bus, "metrics.mem", 2))

	var count sync.WaitGroup
	count.Add(2)
	sub, err := Subscribe(bus, "metrics.*", func(ctx context.Context, m Message[int]) error {
		count.Done()
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Publish(bus, "metrics.cpu", 3))
	require.NoError(t, Publish(bus, "metrics.mem", 4))

	done := make(chan struct{})
	go func() { count.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wildcard did not bind to existing channels")
	}
}

// TestWildcardBackBinding tests binding to channels created later
func TestWildcardBackBinding(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	byChannel := map[string][]int{}

	sub, err := Subscribe(bus, "sensors.>", func(ctx context.Context, m Message[int]) error {
		mu.Lock()
		byChannel[m.Channel] = append(byChannel[m.Channel], m.Body)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	// Channels do not exist yet; creation back-binds before the first
	// publish completes, so even message 1 is delivered.
	for i := 1; i <= 3; i++ {
		require.NoError(t, Publish(bus, "sensors.temp", i))
		require.NoError(t, Publish(bus, "sensors.rack.humidity", i*10))
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(byChannel["sensors.temp"]) == 3 && len(byChannel["sensors.rack.humidity"]) == 3
	}, "back-bound deliveries")

	mu.Lock()
	defer mu.Unlock()
	// Per-source ordering is preserved.
	assert.Equal(t, []int{1, 2, 3}, byChannel["sensors.temp"])
	assert.Equal(t, []int{10, 20, 30}, byChannel["sensors.rack.humidity"])
}

// TestWildcardTypeMismatchSkipsChannel tests that a wildcard subscription
// does not bind to channels of a different body type
func TestWildcardTypeMismatchSkipsChannel(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var got []int

	sub, err := Subscribe(bus, "mixed.*", func(ctx context.Context, m Message[int]) error {
		mu.Lock()
		got = append(got, m.Body)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Publish(bus, "mixed.words", "not an int"))
	require.NoError(t, Publish(bus, "mixed.numbers", 7))

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "typed delivery")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{7}, got)
}

// TestWildcardFetchStateOnBind tests state replay from late-bound channels
func TestWildcardFetchStateOnBind(t *testing.T) {
	bus := New()
	defer bus.Close()

	require.NoError(t, Publish(bus, "fx.eurusd", 108, WithKey("EURUSD"), WithStore()))

	var mu sync.Mutex
	var got []int
	sub, err := Subscribe(bus, "fx.*", func(ctx context.Context, m Message[int]) error {
		mu.Lock()
		got = append(got, m.Body)
		mu.Unlock()
		return nil
	}, WithFetchState())
	require.NoError(t, err)
	defer sub.Close()

	// Replay from the channel that existed at subscribe time.
	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "replay from existing channel")

	// A channel created later replays its state at bind time too; the
	// binding publish itself is also delivered.
	require.NoError(t, Publish(bus, "fx.gbpusd", 127, WithKey("GBPUSD"), WithStore()))

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, "delivery from late-bound channel")
}

// TestWildcardDisposeDetachesAll tests cleanup across bound channels
func TestWildcardDisposeDetachesAll(t *testing.T) {
	bus := New()
	defer bus.Close()

	require.NoError(t, Publish(bus, "logs.a", "x"))
	require.NoError(t, Publish(bus, "logs.b", "y"))

	sub, err := Subscribe(bus, "logs.*", func(ctx context.Context, m Message[string]) error { return nil })
	require.NoError(t, err)

	for _, name := range []string{"logs.a", "logs.b"} {
		subs, err := bus.GetChannelSubscriptions(name)
		require.NoError(t, err)
		assert.Len(t, subs, 1, name)
	}

	require.NoError(t, sub.Close())

	for _, name := range []string{"logs.a", "logs.b"} {
		subs, err := bus.GetChannelSubscriptions(name)
		require.NoError(t, err)
		assert.Len(t, subs, 0, name)
	}
}

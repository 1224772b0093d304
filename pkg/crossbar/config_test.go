package crossbar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateChannelName tests the name alphabet and length rules
func TestValidateChannelName(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		channel string
		valid   bool
	}{
		{"simple", "orders", true},
		{"dotted", "orders.nyse.filled", true},
		{"underscore", "order_book", true},
		{"dash", "order-book", true},
		{"digits", "shard42", true},
		{"system prefix", "$channel.lifecycle", true},
		{"empty", "", false},
		{"space", "a b", false},
		{"slash", "a/b", false},
		{"unicode", "ордеры", false},
		{"too long", strings.Repeat("x", 257), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.validateChannelName(tt.channel)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidChannelName)
			}
		})
	}
}

// TestCustomSystemPrefix tests a non-default prefix character
func TestCustomSystemPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SystemChannelPrefix = "~"
	cfg = cfg.withDefaults()

	assert.NoError(t, cfg.validateChannelName("~internal"))
	assert.Error(t, cfg.validateChannelName("$internal"))
	assert.True(t, cfg.isSystemChannel("~errors"))
	assert.False(t, cfg.isSystemChannel("errors"))
}

// TestWithDefaults tests zero-value backfill
func TestWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, SkipUpdates, cfg.DefaultSlowConsumerStrategy)
	assert.Equal(t, 256, cfg.MaxChannelNameLength)
	assert.Equal(t, "$", cfg.SystemChannelPrefix)
	assert.Greater(t, cfg.SystemChannelBufferCapacity, 0)
}

// TestLoadConfig tests YAML loading over defaults
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crossbar.yaml")
	content := `
default_buffer_capacity: 64
default_slow_consumer_strategy: wait-for-space
default_conflation_interval: 250ms
max_channels: 10
enable_publish_logging: true
system_channel_prefix: "$"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.DefaultBufferCapacity)
	assert.Equal(t, WaitForSpace, cfg.DefaultSlowConsumerStrategy)
	assert.Equal(t, 250*time.Millisecond, cfg.DefaultConflationInterval)
	assert.Equal(t, 10, cfg.MaxChannels)
	assert.True(t, cfg.EnablePublishLogging)

	// Unset fields keep defaults.
	assert.Equal(t, 256, cfg.MaxChannelNameLength)
}

// TestLoadConfigErrors tests failure modes
func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("default_conflation_interval: [not, a, duration]"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	badDur := filepath.Join(t.TempDir(), "baddur.yaml")
	require.NoError(t, os.WriteFile(badDur, []byte(`default_conflation_interval: "eleventy"`), 0644))
	_, err = LoadConfig(badDur)
	assert.Error(t, err)
}

// TestDefaultStrategyApplied tests that bus defaults reach subscriptions
func TestDefaultStrategyApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultBufferCapacity = 2
	bus := NewWithConfig(cfg)
	defer bus.Close()

	block := make(chan struct{})
	defer close(block)

	sub, err := Subscribe(bus, "defaults", func(ctx context.Context, m Message[int]) error {
		<-block
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, Publish(bus, "defaults", i))
	}

	waitFor(t, 5*time.Second, func() bool {
		return sub.Stats().DroppedCount >= 7
	}, "drops under default skip-updates with capacity 2")
}

package crossbar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/crossbar/pkg/stats"
)

// SlowConsumerStrategy is the policy applied when a subscriber's buffer
// is full.
type SlowConsumerStrategy string

const (
	// SkipUpdates silently drops new messages when the buffer is full.
	SkipUpdates SlowConsumerStrategy = "skip-updates"

	// FailSubscriber transitions the subscription to Faulted and stops
	// further deliveries when the buffer is full.
	FailSubscriber SlowConsumerStrategy = "fail-subscriber"

	// WaitForSpace blocks the publisher until space exists or the bus
	// shuts down.
	WaitForSpace SlowConsumerStrategy = "wait-for-space"
)

// Config holds CrossBar configuration.
type Config struct {
	// DefaultBufferCapacity is the queue size when a subscription does
	// not override it. Zero or negative means unbounded.
	DefaultBufferCapacity int `yaml:"default_buffer_capacity"`

	// DefaultSlowConsumerStrategy applies when a subscription does not
	// override it.
	DefaultSlowConsumerStrategy SlowConsumerStrategy `yaml:"default_slow_consumer_strategy"`

	// DefaultConflationInterval is the flush interval for subscriptions
	// that do not set WithConflationInterval. Zero disables conflation.
	DefaultConflationInterval time.Duration `yaml:"-"`

	// MaxChannels caps the registry size; exceeding it rejects new
	// channels. Zero or negative means no cap.
	MaxChannels int `yaml:"max_channels"`

	// MaxChannelNameLength bounds channel name length.
	MaxChannelNameLength int `yaml:"max_channel_name_length"`

	// EnableMessageTracing emits a structured trace record per publish.
	EnableMessageTracing bool `yaml:"enable_message_tracing"`

	// EnableLifecycleTracking publishes channel and subscription
	// lifecycle events on the lifecycle system channel.
	EnableLifecycleTracking bool `yaml:"enable_lifecycle_tracking"`

	// EnablePublishLogging logs each publish at debug level.
	EnablePublishLogging bool `yaml:"enable_publish_logging"`

	// SystemChannelPrefix is the character reserved for internal
	// channels. Must be a single character.
	SystemChannelPrefix string `yaml:"system_channel_prefix"`

	// SystemChannelBufferCapacity is the buffer size for subscriptions
	// on internal channels when not overridden.
	SystemChannelBufferCapacity int `yaml:"system_channel_buffer_capacity"`

	// Stats holds percentile and EWMA parameters for trackers.
	Stats stats.Options `yaml:"stats"`
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		DefaultBufferCapacity:       1024,
		DefaultSlowConsumerStrategy: SkipUpdates,
		DefaultConflationInterval:   0,
		MaxChannels:                 4096,
		MaxChannelNameLength:        256,
		SystemChannelPrefix:         "$",
		SystemChannelBufferCapacity: 256,
		Stats:                       stats.DefaultOptions(),
	}
}

// fileConfig mirrors Config for YAML loading, with durations as strings.
type fileConfig struct {
	Config                    `yaml:",inline"`
	DefaultConflationInterval string `yaml:"default_conflation_interval"`
}

// LoadConfig reads a YAML config file over the defaults. Fields absent from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	fc := fileConfig{Config: DefaultConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("crossbar: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("crossbar: parse config: %w", err)
	}

	cfg := fc.Config
	if fc.DefaultConflationInterval != "" {
		d, err := time.ParseDuration(fc.DefaultConflationInterval)
		if err != nil {
			return Config{}, fmt.Errorf("crossbar: parse default_conflation_interval: %w", err)
		}
		cfg.DefaultConflationInterval = d
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills zero values so a partially populated Config behaves.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultSlowConsumerStrategy == "" {
		c.DefaultSlowConsumerStrategy = d.DefaultSlowConsumerStrategy
	}
	if c.MaxChannelNameLength <= 0 {
		c.MaxChannelNameLength = d.MaxChannelNameLength
	}
	if len(c.SystemChannelPrefix) != 1 {
		c.SystemChannelPrefix = d.SystemChannelPrefix
	}
	if c.SystemChannelBufferCapacity <= 0 {
		c.SystemChannelBufferCapacity = d.SystemChannelBufferCapacity
	}
	return c
}

// validNameChar reports whether r is in the channel name alphabet. The
// configured system prefix character is not included here; validateChannelName
// allows it separately.
func validNameChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// validateChannelName checks a concrete channel name against the alphabet
// and length rules.
func (c Config) validateChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidChannelName)
	}
	if len(name) > c.MaxChannelNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidChannelName, name, c.MaxChannelNameLength)
	}
	prefix := rune(c.SystemChannelPrefix[0])
	for _, r := range name {
		if !validNameChar(r) && r != prefix {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidChannelName, name, r)
		}
	}
	return nil
}

// validatePattern checks a subscription pattern: dot-separated segments
// where "*" matches one segment and ">" terminates the pattern.
func (c Config) validatePattern(pattern string) error {
	if !strings.ContainsAny(pattern, "*>") {
		return c.validateChannelName(pattern)
	}
	if len(pattern) > c.MaxChannelNameLength {
		return fmt.Errorf("%w: pattern %q exceeds %d characters", ErrInvalidChannelName, pattern, c.MaxChannelNameLength)
	}
	segs := strings.Split(pattern, ".")
	for i, seg := range segs {
		switch seg {
		case "*":
			continue
		case ">":
			if i != len(segs)-1 {
				return fmt.Errorf("%w: %q has non-terminal >", ErrInvalidChannelName, pattern)
			}
		case "":
			return fmt.Errorf("%w: pattern %q has empty segment", ErrInvalidChannelName, pattern)
		default:
			if err := c.validateChannelName(seg); err != nil {
				return err
			}
		}
	}
	return nil
}

// isSystemChannel reports whether name is reserved for internal use.
func (c Config) isSystemChannel(name string) bool {
	return strings.HasPrefix(name, c.SystemChannelPrefix)
}

/*
Package log provides structured logging for CrossBar using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Context Loggers:
  - WithComponent: add component name ("crossbar", "subscription", "collector")
  - WithChannel: add channel name context
  - WithSubscription: add subscription id context

# Usage

Initializing the logger:

	import "github.com/cuemby/crossbar/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Structured logging:

	log.Logger.Info().
		Str("channel", "orders.nyse").
		Int64("message_id", 42).
		Msg("message published")

Component loggers:

	subLog := log.WithComponent("subscription")
	subLog.Warn().Str("subscription_id", id).Msg("buffer full, message dropped")

The trace level is reserved for per-message tracing (see the bus option
EnableMessageTracing); keep it disabled in production.

# Integration Points

  - pkg/crossbar: publish logging, message tracing, fault and drop reports
  - pkg/metrics: collector lifecycle logging
  - cmd/crossbar: CLI flag-driven initialization
*/
package log

/*
Package metrics provides Prometheus metrics for CrossBar.

The metrics package defines the crossbar_* gauges and a Collector that
periodically copies bus snapshots into them. Metrics are registered at
package init; the host decides whether and where to serve the Handler.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐         │
	│  │           Metric Definitions                │         │
	│  │  - Bus: channels, subscriptions, totals     │         │
	│  │  - Per channel: rate, published, stored     │         │
	│  │  - Per subscription: depth, drops, ratio    │         │
	│  │  - MustRegister at package init             │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │             Collector                       │         │
	│  │  - Polls bus.Overview() and GetChannels()   │         │
	│  │  - 15 second interval                       │         │
	│  │  - Start()/Stop() lifecycle                 │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │           HTTP Endpoint                     │         │
	│  │  - Handler: promhttp.Handler()              │         │
	│  │  - Served by the host process               │         │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────┘

# Usage

	bus := crossbar.New()

	collector := metrics.NewCollector(bus)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())

Totals exported here are gauges set from bus snapshots rather than
counters incremented on the hot path; the bus keeps its own counters and
the collector mirrors them, so delivery never pays a Prometheus cost.

# Integration Points

  - pkg/crossbar: Overview, GetChannels, GetChannelSubscriptions snapshots
  - cmd/crossbar: serves the handler in demo runs (--metrics-addr)
*/
package metrics

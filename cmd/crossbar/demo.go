package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/crossbar/pkg/crossbar"
	"github.com/cuemby/crossbar/pkg/log"
	"github.com/cuemby/crossbar/pkg/metrics"
)

// Tick is the demo feed payload: one price update for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Seq    int64
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a market-data feed against an embedded bus",
	Long: `Runs publishers emitting keyed price ticks on prices.<exchange>
channels, with three consumers attached: a conflating ticker display, a
wildcard audit subscriber, and a late joiner that replays the state store.
Prints bus statistics once per second.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Duration("duration", 30*time.Second, "How long to run the feed")
	demoCmd.Flags().Int("symbols", 8, "Symbols per exchange")
	demoCmd.Flags().Duration("tick-interval", time.Millisecond, "Delay between published ticks")
	demoCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	symbols, _ := cmd.Flags().GetInt("symbols")
	tickInterval, _ := cmd.Flags().GetDuration("tick-interval")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := loadBusConfig()
	if err != nil {
		return err
	}
	bus := crossbar.NewWithConfig(cfg)
	defer bus.Close()

	collector := metrics.NewCollector(bus)
	collector.Start()
	defer collector.Stop()

	if metricsAddr != "" {
		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				log.Errorf("metrics server stopped", err)
			}
		}()
	}

	demoLog := log.WithComponent("demo")

	// Conflating ticker: at most one update per symbol per flush.
	ticker, err := crossbar.Subscribe(bus, "prices.nyse",
		func(ctx context.Context, m crossbar.Message[Tick]) error {
			demoLog.Debug().
				Str("symbol", m.Key).
				Float64("price", m.Body.Price).
				Msg("tick")
			return nil
		},
		crossbar.WithSubscriptionName("ticker-display"),
		crossbar.WithBufferCapacity(256),
		crossbar.WithConflationInterval(250*time.Millisecond),
	)
	if err != nil {
		return err
	}
	defer ticker.Close()

	// Wildcard audit: every exchange, drop under pressure.
	audit, err := crossbar.Subscribe(bus, "prices.>",
		func(ctx context.Context, m crossbar.Message[Tick]) error {
			return nil
		},
		crossbar.WithSubscriptionName("audit"),
		crossbar.WithBufferCapacity(1024),
	)
	if err != nil {
		return err
	}
	defer audit.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), duration)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exchanges := []string{"nyse", "nasdaq", "lse"}
	for _, ex := range exchanges {
		go publishFeed(ctx, bus, "prices."+ex, symbols, tickInterval)
	}

	// A late joiner replays the state store before live traffic.
	lateJoin := time.After(duration / 2)

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			printOverview(bus)
		case <-lateJoin:
			late, err := crossbar.Subscribe(bus, "prices.nyse",
				func(ctx context.Context, m crossbar.Message[Tick]) error {
					return nil
				},
				crossbar.WithSubscriptionName("late-joiner"),
				crossbar.WithFetchState(),
			)
			if err != nil {
				return err
			}
			defer late.Close()
			demoLog.Info().Msg("late joiner attached with state replay")
		case <-sigCh:
			demoLog.Info().Msg("interrupted")
			return nil
		case <-ctx.Done():
			printOverview(bus)
			return nil
		}
	}
}

func publishFeed(ctx context.Context, bus *crossbar.CrossBar, channel string, symbols int, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make([]float64, symbols)
	for i := range prices {
		prices[i] = 50 + rng.Float64()*200
	}

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		i := rng.Intn(symbols)
		prices[i] *= 1 + (rng.Float64()-0.5)*0.01
		seq++
		err := crossbar.Publish(bus, channel, Tick{
			Symbol: fmt.Sprintf("SYM-%d", i),
			Price:  prices[i],
			Seq:    seq,
		},
			crossbar.WithKey(fmt.Sprintf("SYM-%d", i)),
			crossbar.WithStore(),
			crossbar.WithFrom("feed-"+channel),
		)
		if err != nil {
			log.Errorf("publish failed", err)
			return
		}
	}
}

func printOverview(bus *crossbar.CrossBar) {
	ov := bus.Overview()
	fmt.Printf("channels=%d subs=%d (wildcard=%d) published=%d processed=%d rate=%.0f/s backlog=%d\n",
		ov.TotalChannels, ov.TotalSubscriptions, ov.WildcardSubscriptions,
		ov.TotalPublished, ov.TotalProcessed, ov.PublishRate, ov.BackloggedSubscriptions)
}

func loadBusConfig() (crossbar.Config, error) {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		return crossbar.DefaultConfig(), nil
	}
	return crossbar.LoadConfig(path)
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/crossbar/pkg/crossbar"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure fan-out throughput on an embedded bus",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().Int("publishers", 4, "Concurrent publisher goroutines")
	benchCmd.Flags().Int("subscribers", 8, "Subscribers on the benchmark channel")
	benchCmd.Flags().Int("messages", 100000, "Messages per publisher")
	benchCmd.Flags().Int("buffer", 4096, "Subscriber buffer capacity")
}

func runBench(cmd *cobra.Command, args []string) error {
	publishers, _ := cmd.Flags().GetInt("publishers")
	subscribers, _ := cmd.Flags().GetInt("subscribers")
	messages, _ := cmd.Flags().GetInt("messages")
	buffer, _ := cmd.Flags().GetInt("buffer")

	cfg, err := loadBusConfig()
	if err != nil {
		return err
	}
	bus := crossbar.NewWithConfig(cfg)
	defer bus.Close()

	var processed atomic.Int64
	for i := 0; i < subscribers; i++ {
		sub, err := crossbar.Subscribe(bus, "bench.fanout",
			func(ctx context.Context, m crossbar.Message[int64]) error {
				processed.Add(1)
				return nil
			},
			crossbar.WithSubscriptionName("bench-"+strconv.Itoa(i)),
			crossbar.WithBufferCapacity(buffer),
			crossbar.WithSlowConsumerStrategy(crossbar.WaitForSpace),
		)
		if err != nil {
			return err
		}
		defer sub.Close()
	}

	start := time.Now()
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			from := "bench-pub-" + strconv.Itoa(p)
			for i := 0; i < messages; i++ {
				if err := crossbar.Publish(bus, "bench.fanout", int64(i), crossbar.WithFrom(from)); err != nil {
					return
				}
			}
		}(p)
	}
	wg.Wait()
	publishElapsed := time.Since(start)

	total := int64(publishers) * int64(messages)
	expected := total * int64(subscribers)
	for processed.Load() < expected {
		time.Sleep(10 * time.Millisecond)
	}
	elapsed := time.Since(start)

	fmt.Printf("published %d messages in %v (%.0f msg/s)\n",
		total, publishElapsed.Round(time.Millisecond), float64(total)/publishElapsed.Seconds())
	fmt.Printf("delivered %d messages to %d subscribers in %v (%.0f msg/s)\n",
		expected, subscribers, elapsed.Round(time.Millisecond), float64(expected)/elapsed.Seconds())
	return nil
}

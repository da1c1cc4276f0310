package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/unnatinarayan/garuda-notifier/internal/config"
	"github.com/unnatinarayan/garuda-notifier/internal/consumer"
	"github.com/unnatinarayan/garuda-notifier/internal/processor"
)

// pipeline holds the shared stages every consumer worker feeds.
type pipeline struct {
	resolver    processor.RecipientResolver
	cache       processor.NotificationCache
	pusher      processor.LivePusher
	deadLetters processor.DeadLetterPublisher
	metrics     processor.MetricsRecorder
}

// startWorkers starts cfg.ConsumerWorkers consumers in one group, each with its own
// processing loop. The returned function waits for the loops and closes the consumers.
func startWorkers(ctx context.Context, cfg *config.Config, p pipeline) (func(), error) {
	consumers := make([]*consumer.Consumer, 0, cfg.ConsumerWorkers)
	closeAll := func() {
		for _, c := range consumers {
			c.Close()
		}
	}

	for i := 0; i < cfg.ConsumerWorkers; i++ {
		c, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.AlertsTopic, cfg.ConsumerGroupID)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create consumer %d: %w", i, err)
		}
		consumers = append(consumers, c)
	}

	opts := processor.Options{
		Retry:       retryConfig(cfg),
		DeadLetters: p.deadLetters,
		Metrics:     p.metrics,
	}

	var wg sync.WaitGroup
	for i, c := range consumers {
		proc := processor.NewProcessorWithOptions(c, p.resolver, p.cache, p.pusher, opts)
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			slog.Info("Starting alert consumer worker", "worker", worker)
			if err := proc.ProcessAlerts(ctx); err != nil {
				slog.Error("Alert processing failed", "worker", worker, "error", err)
			}
		}(i)
	}

	return func() {
		wg.Wait()
		closeAll()
	}, nil
}

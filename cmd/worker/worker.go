package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/queue"
)

var workerDryRun bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume supply-list jobs until interrupted",
	Long: `Run the asynq consumer on QUEUE_NAME. Each job is one document; up to
WORKER_CONCURRENCY documents are processed in parallel. SIGINT or SIGTERM
stops intake and waits for running documents to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerDryRun, "dry-run", false, "extract and log outcomes without saving entities")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := logging.NewLogger("Worker")

	dryRun := cfg.DryRun || workerDryRun

	logger.Info("Supply-list worker starting",
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"ocr", cfg.OCRProvider,
		"textbookIndex", cfg.TextbookIndexEnabled(),
		"dryRun", dryRun)

	p, err := buildPipeline(ctx, cfg, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Error closing pipeline", "error", err)
		}
	}()

	events, err := queue.NewEventPublisher(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	defer events.Close()

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         p.processor,
		Events:            events,
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("Waiting for jobs", "consumer", consumer.GetStatistics())

	<-ctx.Done()
	logger.Info("Shutdown requested, draining running jobs")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeout+30*time.Second)
	defer cancel()
	if err := consumer.Stop(stopCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	if stats, err := events.GetStats(stopCtx); err == nil {
		logger.Info("Job totals", "processing", stats[queue.JobProcessing], "completed", stats[queue.JobCompleted], "failed", stats[queue.JobFailed])
	}

	if stats, err := p.storage.GetStats(stopCtx); err == nil {
		logger.Info("Storage totals", "stats", stats)
	} else {
		logger.Warn("Failed to read storage stats", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

/**
 * Queue Consumer for the Supply-List Worker
 *
 * Consumes supply-list jobs from Redis through asynq and runs each
 * document through the processor. Concurrency is the number of documents
 * processed in parallel; pages of one document are handled in order.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/processor"
)

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	events    JobEvents
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	Events            JobEvents
	ProcessingTimeout time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("Queue")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger:   &asynqLogger{logger: logging.NewLogger("Asynq")},
			LogLevel: asynq.WarnLevel,
		},
	)

	consumer := newConsumer(cfg, logger)
	consumer.server = server
	return consumer, nil
}

func newConsumer(cfg *ConsumerConfig, logger *logging.Logger) *Consumer {
	c := &Consumer{
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		events:    cfg.Events,
		config:    cfg,
		logger:    logger,
	}
	c.mux.HandleFunc(TaskTypeProcess, c.handleProcessDocument)
	return c
}

// Start starts the queue consumer without blocking
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully, waiting for running jobs
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleProcessDocument processes a document processing job
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job JobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %v: %w", err, asynq.SkipRetry)
	}

	logger := c.logger.With("jobId", job.JobID, "fileId", job.FileID)
	logger.Info("Processing document", "filename", job.Filename)
	c.publish(ctx, logger, JobProcessing, &JobEvent{JobID: job.JobID, FileID: job.FileID})

	timeout := 15 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &processor.ProcessRequest{
		JobID:      job.JobID,
		FileID:     job.FileID,
		Filename:   job.Filename,
		MimeType:   job.MimeType,
		FilePath:   job.FilePath,
		FileURL:    job.FileURL,
		FileBuffer: job.FileBuffer,
	}

	result, err := c.processor.ProcessDocument(processCtx, req)
	duration := time.Since(startTime)

	if err != nil && errors.Is(processCtx.Err(), context.DeadlineExceeded) &&
		apperrors.CodeOf(err) != apperrors.ErrorProcessingTimeout {
		err = apperrors.NewProcessingTimeoutError(job.JobID, timeout, err)
	}

	// The outcome is recorded with the parent context: processCtx may have expired.
	if logErr := c.processor.RecordOutcome(ctx, req, result, err); logErr != nil {
		logger.Warn("Failed to record document outcome", "error", logErr)
	}

	status := apperrors.StatusForError(err)

	if err != nil {
		logger.Error("Processing failed", "status", status, "durationMs", duration.Milliseconds(), "error", err)
		event := &JobEvent{
			JobID:   job.JobID,
			FileID:  job.FileID,
			Status:  string(status),
			Message: err.Error(),
		}
		var procErr *apperrors.ProcessingError
		if errors.As(err, &procErr) {
			event.Details = procErr.ToMap()
		}
		c.publish(ctx, logger, JobFailed, event)

		if apperrors.IsTerminal(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	logger.Info("Processing completed", "textbooks", result.Textbooks, "durationMs", duration.Milliseconds())
	c.publish(ctx, logger, JobCompleted, &JobEvent{
		JobID:  job.JobID,
		FileID: job.FileID,
		Status: string(status),
		Details: map[string]interface{}{
			"textbooks":        result.Textbooks,
			"levels":           len(result.Document.Levels),
			"processingTimeMs": duration.Milliseconds(),
		},
	})

	return nil
}

func (c *Consumer) publish(ctx context.Context, logger *logging.Logger, state string, event *JobEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, state, event); err != nil {
		logger.Warn("Failed to publish job event", "state", state, "error", err)
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// asynqLogger routes asynq's internal logging through the worker logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

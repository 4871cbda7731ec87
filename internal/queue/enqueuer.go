package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// EnqueuerConfig holds producer configuration
type EnqueuerConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int
	// Timeout bounds one task run on the server side
	Timeout time.Duration
}

// Enqueuer submits supply-list jobs
type Enqueuer struct {
	client *asynq.Client
	config *EnqueuerConfig
}

// NewEnqueuer creates an asynq client for the queue
func NewEnqueuer(cfg *EnqueuerConfig) (*Enqueuer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Enqueuer{client: asynq.NewClient(redisOpt), config: cfg}, nil
}

// NewTask builds the asynq task for a payload, assigning a job ID when missing
func NewTask(payload *JobPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if payload.FileID == "" {
		payload.FileID = payload.JobID
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job %s: %w", payload.JobID, err)
	}

	return asynq.NewTask(TaskTypeProcess, data), nil
}

// Enqueue submits one document job
func (e *Enqueuer) Enqueue(ctx context.Context, payload *JobPayload) (*asynq.TaskInfo, error) {
	task, err := NewTask(payload)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(e.config.QueueName),
		asynq.TaskID(payload.JobID),
	}
	if e.config.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.config.MaxRetry))
	}
	if e.config.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.config.Timeout))
	}

	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}

	return info, nil
}

// Close closes the asynq client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

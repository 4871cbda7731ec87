package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job lifecycle states tracked in Redis
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobEvent is published on <queue>:events for every state change
type JobEvent struct {
	Event     string                 `json:"event"`
	JobID     string                 `json:"jobId"`
	FileID    string                 `json:"fileId,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// JobEvents receives job lifecycle notifications
type JobEvents interface {
	Publish(ctx context.Context, state string, event *JobEvent) error
}

// EventPublisher keeps the processing/completed/failed sets and publishes events
type EventPublisher struct {
	client    *redis.Client
	queueName string
}

// NewEventPublisher connects to Redis
func NewEventPublisher(redisURL, queueName string) (*EventPublisher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewEventPublisherWithClient(client, queueName), nil
}

// NewEventPublisherWithClient uses an existing Redis client
func NewEventPublisherWithClient(client *redis.Client, queueName string) *EventPublisher {
	return &EventPublisher{client: client, queueName: queueName}
}

func (e *EventPublisher) key(suffix string) string {
	return fmt.Sprintf("%s:%s", e.queueName, suffix)
}

// Publish moves the job into the set for state and publishes the event
func (e *EventPublisher) Publish(ctx context.Context, state string, event *JobEvent) error {
	event.Event = "job:" + state
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	_, err = e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch state {
		case JobProcessing:
			pipe.SAdd(ctx, e.key(JobProcessing), event.JobID)
		case JobCompleted:
			pipe.SRem(ctx, e.key(JobProcessing), event.JobID)
			pipe.SAdd(ctx, e.key(JobCompleted), event.JobID)
			pipe.HSet(ctx, e.key("results"), event.JobID, data)
		case JobFailed:
			pipe.SRem(ctx, e.key(JobProcessing), event.JobID)
			pipe.SAdd(ctx, e.key(JobFailed), event.JobID)
			pipe.HSet(ctx, e.key("errors"), event.JobID, data)
		}
		pipe.Publish(ctx, e.key("events"), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish job:%s for %s: %w", state, event.JobID, err)
	}

	return nil
}

// GetStats returns the size of each lifecycle set
func (e *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, state := range []string{JobProcessing, JobCompleted, JobFailed} {
		n, err := e.client.SCard(ctx, e.key(state)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", state, err)
		}
		stats[state] = n
	}
	return stats, nil
}

// Close closes the Redis client
func (e *EventPublisher) Close() error {
	return e.client.Close()
}

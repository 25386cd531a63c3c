// Package events publishes pipeline run events to Redis pub/sub so other
// tooling can observe processing without polling the stores. Publishing is
// best-effort; a failed publish never fails a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haneul-labs/mailaction/pkg/logging"
)

// Pub/sub channels.
const (
	ChannelRecordProcessed = "mailaction:events:record_processed"
	ChannelActionExtracted = "mailaction:events:action_extracted"
	ChannelRunCompleted    = "mailaction:events:run_completed"
)

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordProcessedEvent is published after each record finishes.
type RecordProcessedEvent struct {
	BaseEvent
	RecordID  string `json:"record_id"`
	EmailID   string `json:"email_id"`
	Status    string `json:"status"`
	HasAction bool   `json:"has_action"`
}

// ActionExtractedEvent is published when a record yields an action.
type ActionExtractedEvent struct {
	BaseEvent
	RecordID   string  `json:"record_id"`
	EmailID    string  `json:"email_id"`
	ActionType string  `json:"action_type"`
	Title      string  `json:"title"`
	Assignee   string  `json:"assignee"`
	Due        string  `json:"due,omitempty"`
	Confidence float64 `json:"confidence"`
}

// RunCompletedEvent is published once at the end of a batch run.
type RunCompletedEvent struct {
	BaseEvent
	Total            int `json:"total"`
	Processed        int `json:"processed"`
	Skipped          int `json:"skipped"`
	ActionsExtracted int `json:"actions_extracted"`
	Errors           int `json:"errors"`
}

// Publisher is the interface the batch runner publishes through.
type Publisher interface {
	PublishRecordProcessed(ctx context.Context, ev RecordProcessedEvent) error
	PublishActionExtracted(ctx context.Context, ev ActionExtractedEvent) error
	PublishRunCompleted(ctx context.Context, ev RunCompletedEvent) error
	Close() error
}

// RedisPublisher publishes events over a Redis client.
type RedisPublisher struct {
	client *redis.Client
	log    logging.Logger
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr string, log logging.Logger) (*RedisPublisher, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisPublisher{
		client: client,
		log:    log.With(logging.F("component", "events")),
	}, nil
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, ev any) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// PublishRecordProcessed publishes a record-processed event.
func (p *RedisPublisher) PublishRecordProcessed(ctx context.Context, ev RecordProcessedEvent) error {
	ev.Type = "record_processed"
	return p.publish(ctx, ChannelRecordProcessed, ev)
}

// PublishActionExtracted publishes an action-extracted event.
func (p *RedisPublisher) PublishActionExtracted(ctx context.Context, ev ActionExtractedEvent) error {
	ev.Type = "action_extracted"
	return p.publish(ctx, ChannelActionExtracted, ev)
}

// PublishRunCompleted publishes a run-completed event.
func (p *RedisPublisher) PublishRunCompleted(ctx context.Context, ev RunCompletedEvent) error {
	ev.Type = "run_completed"
	return p.publish(ctx, ChannelRunCompleted, ev)
}

// Close releases the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher discards all events. Used when events are disabled and in
// tests.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) PublishRecordProcessed(context.Context, RecordProcessedEvent) error {
	return nil
}

func (NoopPublisher) PublishActionExtracted(context.Context, ActionExtractedEvent) error {
	return nil
}

func (NoopPublisher) PublishRunCompleted(context.Context, RunCompletedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

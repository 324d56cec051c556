package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/powerchain/backend/internal/models"
)

// RedisEventPublisher publishes each event envelope as JSON on a pub/sub
// channel for the notification layer.
type RedisEventPublisher struct {
	redis   *redis.Client
	channel string
}

func NewRedisEventPublisher(redis *redis.Client, channel string) *RedisEventPublisher {
	return &RedisEventPublisher{redis: redis, channel: channel}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, events []models.Event) error {
	for _, ev := range events {
		data, err := json.Marshal(models.Wrap(ev))
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Kind(), err)
		}
		if err := p.redis.Publish(ctx, p.channel, string(data)).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Kind(), err)
		}
	}
	return nil
}

// EventRecorder keeps published events in memory. It backs tests and runs
// where Redis is unavailable.
type EventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *EventRecorder) Publish(_ context.Context, events []models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

// Kinds lists the recorded event kinds in order.
func (r *EventRecorder) Kinds() []models.EventKind {
	events := r.Events()
	kinds := make([]models.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

// MultiPublisher fans events out to every publisher. All publishers run; the
// first error is returned.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, events []models.Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

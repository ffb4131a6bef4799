// Package redis provides Redis-based adapters for the recruitpro job system.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/job"
)

// DefaultEventChannel is the pub/sub channel terminal job events are
// published on unless a custom channel is configured.
const DefaultEventChannel = "recruitpro:jobs:events"

// EventPublisher publishes terminal job events over Redis pub/sub so
// other processes (the API layer, websocket gateways) can observe them.
//
// Redis pub/sub is itself at-most-once to connected subscribers, which
// matches the event contract: a missed event is recovered by polling the
// job record.
type EventPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewEventPublisher creates a Redis event publisher on the default channel.
func NewEventPublisher(client redis.UniversalClient, logger *slog.Logger) *EventPublisher {
	return NewEventPublisherWithChannel(client, DefaultEventChannel, logger)
}

// NewEventPublisherWithChannel creates a Redis event publisher with a
// custom pub/sub channel.
func NewEventPublisherWithChannel(
	client redis.UniversalClient,
	channel string,
	logger *slog.Logger,
) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Publish implements job.Publisher. Failures are logged and dropped:
// event delivery is best-effort and must never fail the job transition
// that triggered it.
func (p *EventPublisher) Publish(ctx context.Context, ev job.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal job event", "job_id", ev.JobID, "error", err)
		return
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.ErrorContext(ctx, "publish job event",
			"job_id", ev.JobID, "channel", p.channel, "error", err)
	}
}

var _ job.Publisher = (*EventPublisher)(nil)

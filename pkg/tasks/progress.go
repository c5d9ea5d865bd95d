package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/logger"
)

// ProgressPublisher delivers job events to interested subscribers.
// Delivery is best-effort: progress is advisory and never fails a job.
type ProgressPublisher interface {
	Publish(ctx context.Context, event Event)
}

// RedisPublisher publishes events on the job's pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	event.TS = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal progress event", "job_id", event.JobID, "error", err)
		return
	}
	if err := p.client.Publish(ctx, ProgressChannel(event.JobID), data).Err(); err != nil {
		p.log.Warn("failed to publish progress event", "job_id", event.JobID, "stage", event.Stage, "error", err)
	}
}

// Subscribe returns the pub/sub subscription for a job's events. The
// caller owns the subscription and must close it.
func Subscribe(ctx context.Context, client *redis.Client, jobID string) *redis.PubSub {
	return client.Subscribe(ctx, ProgressChannel(jobID))
}

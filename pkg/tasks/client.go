package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/creastat/voicegen-go/pkg/logger"
)

const (
	generateMaxRetry = 2
	generateTimeout  = 30 * time.Minute
)

// Client enqueues generation jobs onto the voicegen queue.
type Client struct {
	client *asynq.Client
	log    logger.Logger
}

func NewClient(redisAddr string, log logger.Logger) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    log,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueGenerate queues a generation job for the given script JSON and
// returns the job id progress events are published under.
func (c *Client) EnqueueGenerate(ctx context.Context, scriptJSON []byte, outputDir string) (string, error) {
	jobID := uuid.NewString()

	data, err := json.Marshal(GeneratePayload{
		JobID:     jobID,
		Script:    scriptJSON,
		OutputDir: outputDir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate payload: %w", err)
	}

	task := asynq.NewTask(TypeGenerate, data)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(generateMaxRetry),
		asynq.Timeout(generateTimeout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TypeGenerate, err)
	}

	c.log.Info("enqueued generation job", "job_id", jobID, "task_id", info.ID, "queue", info.Queue)
	return jobID, nil
}

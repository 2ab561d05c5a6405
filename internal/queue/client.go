package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	compressRetries = 5
	compressTimeout = 10 * time.Minute
)

// Client enqueues compress runs onto one named asynq queue.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisConnOpt, queueName string) *Client {
	if queueName == "" {
		queueName = "default"
	}
	return &Client{client: asynq.NewClient(redisOpt), queue: queueName}
}

// EnqueueCompress schedules a batch run. The request id doubles as the task
// id, so a client retrying the same request gets asynq.ErrTaskIDConflict
// instead of a second run. A run that finds another batch in flight is
// retried by the worker.
func (c *Client) EnqueueCompress(ctx context.Context, payload CompressPayload) (*asynq.TaskInfo, error) {
	task, err := NewCompressTask(payload)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(compressRetries),
		asynq.Timeout(compressTimeout),
	}
	if payload.RequestID != "" {
		opts = append(opts, asynq.TaskID(payload.RequestID))
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("enqueue %s: %w", TypeCompressBatch, err)
	}
	return info, nil
}

func (c *Client) Queue() string {
	return c.queue
}

func (c *Client) Close() error {
	return c.client.Close()
}

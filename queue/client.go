// Package queue is the redis-backed scan work queue. The CLI (or a gateway)
// pushes ScanJobs onto a shared list; scan workers pop them with a blocking
// BRPOP and publish ScanResults on a per-job pub/sub channel. Redis is
// optional: a deployment without it runs scans inline in the CLI process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// JobsQueue is the redis list shared by all scan workers.
const JobsQueue = "exposuregraph:scan:jobs"

// ResultsChannel returns the pub/sub channel carrying results for one job.
func ResultsChannel(jobID string) string {
	return fmt.Sprintf("exposuregraph:scan:results:%s", jobID)
}

// Client is the queue surface. *RedisClient implements it; tests and the
// inline scan path substitute fakes.
type Client interface {
	// Push enqueues a scan job.
	Push(ctx context.Context, job ScanJob) error

	// Pop removes and returns the oldest queued job, blocking until one is
	// available or the context is canceled.
	Pop(ctx context.Context) (*ScanJob, error)

	// PublishResult announces a finished scan on the job's result channel.
	PublishResult(ctx context.Context, result ScanResult) error

	// SubscribeResults streams results for one job until the context is
	// canceled. The returned channel is closed when the subscription ends.
	SubscribeResults(ctx context.Context, jobID string) (<-chan ScanResult, error)

	// Close closes the redis connection.
	Close() error
}

// Options configures the redis connection.
type Options struct {
	// URL is the redis connection string, e.g. "redis://localhost:6379".
	URL string

	// ConnectTimeout bounds connection establishment. Defaults to 5s.
	ConnectTimeout time.Duration

	// Logger receives queue events. Defaults to slog.Default().
	Logger *slog.Logger
}

// RedisClient implements Client on go-redis/v9.
type RedisClient struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisClient connects to redis and verifies reachability with a ping.
func NewRedisClient(opts Options) (*RedisClient, error) {
	const op = "queue.NewRedisClient"

	if opts.URL == "" {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: redis URL cannot be empty", exposuregraph.ErrInvalidConfig))
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("invalid redis URL: %w", err))
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		exposuregraph.CloseWithLog(client, opts.Logger, "redis client")
		return nil, exposuregraph.NewNetworkError(op, fmt.Errorf("redis unreachable: %w", err))
	}

	return &RedisClient{client: client, logger: opts.Logger}, nil
}

// Push enqueues a scan job on the shared jobs list.
func (c *RedisClient) Push(ctx context.Context, job ScanJob) error {
	const op = "RedisClient.Push"

	if err := job.IsValid(); err != nil {
		return exposuregraph.NewValidationError(op, err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return exposuregraph.NewInternalError(op, err)
	}

	if err := c.client.LPush(ctx, JobsQueue, data).Err(); err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("failed to push scan job: %w", err))
	}

	c.logger.Debug("scan job enqueued", "job_id", job.JobID, "domain", job.Domain)
	return nil
}

// popPollInterval bounds each BRPOP. An unbounded BRPOP blocks in the
// server-side read and never observes cancellation, so Pop polls in short
// rounds and checks the context between them.
const popPollInterval = time.Second

// Pop removes and returns the oldest queued job. Blocks until a job is
// available or the context is canceled; cancellation returns ctx.Err()
// within one poll interval.
func (c *RedisClient) Pop(ctx context.Context) (*ScanJob, error) {
	const op = "RedisClient.Pop"

	var result []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		result, err = c.client.BRPop(ctx, popPollInterval, JobsQueue).Result()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		return nil, exposuregraph.NewNetworkError(op, fmt.Errorf("failed to pop scan job: %w", err))
	}

	// BRPOP returns [queue_name, value].
	if len(result) != 2 {
		return nil, exposuregraph.NewInternalError(op,
			fmt.Errorf("unexpected BRPOP result length: %d", len(result)))
	}

	var job ScanJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, exposuregraph.NewInternalError(op, fmt.Errorf("failed to decode scan job: %w", err))
	}
	return &job, nil
}

// PublishResult announces a finished scan on the job's result channel.
func (c *RedisClient) PublishResult(ctx context.Context, result ScanResult) error {
	const op = "RedisClient.PublishResult"

	if err := result.IsValid(); err != nil {
		return exposuregraph.NewValidationError(op, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return exposuregraph.NewInternalError(op, err)
	}

	channel := ResultsChannel(result.JobID)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("failed to publish scan result: %w", err))
	}
	return nil
}

// SubscribeResults streams results for one job. Undecodable payloads are
// logged and skipped.
func (c *RedisClient) SubscribeResults(ctx context.Context, jobID string) (<-chan ScanResult, error) {
	const op = "RedisClient.SubscribeResults"

	pubsub := c.client.Subscribe(ctx, ResultsChannel(jobID))

	// Wait for subscription confirmation so no result published after this
	// call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		exposuregraph.CloseWithLog(pubsub, c.logger, "result subscription")
		return nil, exposuregraph.NewNetworkError(op, fmt.Errorf("failed to subscribe: %w", err))
	}

	out := make(chan ScanResult)

	go func() {
		defer close(out)
		defer exposuregraph.CloseWithLog(pubsub, c.logger, "result subscription")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result ScanResult
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					c.logger.Warn("skipping undecodable scan result",
						"channel", msg.Channel, "error", err)
					continue
				}

				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

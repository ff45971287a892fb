package tasks

import (
	"time"

	"github.com/hibiken/asynq"

	"reelforge/internal/platform/redis"
)

type Client struct {
	c    *asynq.Client
	insp *asynq.Inspector
}

func New(r *redis.Service) *Client {
	opt := r.AsynqRedisOpt()
	return &Client{c: asynq.NewClient(opt), insp: asynq.NewInspector(opt)}
}

func (t *Client) Enqueue(task *asynq.Task, queue string, maxRetries int) error {
	_, err := t.c.Enqueue(task, asynq.Queue(queue), asynq.MaxRetry(maxRetries))
	return err
}

// EnqueueIn schedules a task for later processing. Used for the delayed
// artifact cleanup that runs after a job's download links expire.
func (t *Client) EnqueueIn(task *asynq.Task, queue string, maxRetries int, delay time.Duration) error {
	_, err := t.c.Enqueue(task, asynq.Queue(queue), asynq.MaxRetry(maxRetries), asynq.ProcessIn(delay))
	return err
}

// QueueStats is a point-in-time snapshot of one queue.
type QueueStats struct {
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Processed int
	Failed    int
}

func (t *Client) QueueStats(queue string) (*QueueStats, error) {
	info, err := t.insp.GetQueueInfo(queue)
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Processed: info.Processed,
		Failed:    info.Failed,
	}, nil
}

func (t *Client) Close() error {
	_ = t.insp.Close()
	return t.c.Close()
}

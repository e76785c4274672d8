package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Task type names.
const (
	TaskExecute = "generation:execute"
	TaskSweep   = "generation:sweep"
)

const defaultRetention = 24 * time.Hour

type executePayload struct {
	JobID string `json:"job_id"`
}

// QueueOptions are applied to every execute task.
type QueueOptions struct {
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// NewExecuteTask builds the task for jobID. The task id is the job id so a job
// is never queued twice while its task is retained.
func NewExecuteTask(jobID string, opts QueueOptions) (*asynq.Task, error) {
	payload, err := json.Marshal(executePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	taskOpts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.MaxRetry(max(opts.MaxRetry, 0)),
		asynq.Retention(retention),
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	return asynq.NewTask(TaskExecute, payload, taskOpts...), nil
}

func parseExecutePayload(data []byte) (string, error) {
	var p executePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.JobID) == "" {
		return "", errors.New("job_id is empty")
	}
	return p.JobID, nil
}

// AsynqEnqueuer enqueues execute tasks on Redis.
type AsynqEnqueuer struct {
	client *asynq.Client
	opts   QueueOptions
	logger zerolog.Logger
}

func NewAsynqEnqueuer(client *asynq.Client, opts QueueOptions, logger zerolog.Logger) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client, opts: opts, logger: logger}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	task, err := NewExecuteTask(jobID, e.opts)
	if err != nil {
		return fmt.Errorf("build task: %w", err)
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			e.logger.Debug().Str("job_id", jobID).Msg("queue: task already enqueued")
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TaskExecute, err)
	}
	e.logger.Debug().Str("job_id", jobID).Str("queue", info.Queue).Msg("queue: task enqueued")
	return nil
}

var _ Enqueuer = (*AsynqEnqueuer)(nil)

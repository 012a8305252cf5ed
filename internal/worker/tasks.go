package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/service"

	"github.com/hibiken/asynq"
)

const TypeImportApply = "import:apply"

type ApplyPayload struct {
	RunID string              `json:"run_id"`
	Mode  importer.ImportMode `json:"mode"`
}

// NewApplyTask builds the task for runID. The task id is the run id so a
// run can sit in the queue at most once.
func NewApplyTask(runID string, mode importer.ImportMode) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(ApplyPayload{RunID: runID, Mode: mode})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID(runID),
		asynq.MaxRetry(0),
		asynq.Queue("critical"),
	}
	return asynq.NewTask(TypeImportApply, payload), opts, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqQueue implements service.TaskQueue on an asynq client.
type AsynqQueue struct {
	client enqueuer
}

func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{client: client}
}

func (q *AsynqQueue) EnqueueApply(ctx context.Context, runID string, mode importer.ImportMode) error {
	task, opts, err := NewApplyTask(runID, mode)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return service.ErrRunAlreadyApplied
		}
		return fmt.Errorf("failed to enqueue %s: %w", TypeImportApply, err)
	}
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/promptline/api/internal/model"
	"github.com/promptline/api/internal/provider"
	"github.com/promptline/api/internal/service"
)

// asynq exposes delivery metadata only through its own handler context,
// which cannot be constructed outside the package; tests swap these.
var (
	getRetryCount = asynq.GetRetryCount
	getMaxRetry   = asynq.GetMaxRetry
)

// jobStore is the slice of TaskService the worker needs to drive a job
// through its state machine.
type jobStore interface {
	MarkInProgress(ctx context.Context, taskID string) (*model.Job, error)
	MarkRetrying(ctx context.Context, taskID string, jobErr model.JobError) (*model.Job, error)
	CompleteTask(ctx context.Context, taskID string, result string) (*model.Job, error)
	FailTask(ctx context.Context, taskID string, jobErr model.JobError) (*model.Job, error)
}

// notifier pushes state transitions to websocket subscribers.
type notifier interface {
	BroadcastStatus(job *model.Job)
}

// TaskWorker processes prompt jobs. Each invocation owns exactly one job:
// it marks the record in-progress before calling the backend, and always
// writes a terminal or retrying state before returning. asynq acknowledges
// the task only after ProcessTask returns, so a crash mid-processing leads
// to redelivery, never silent loss.
type TaskWorker struct {
	store    jobStore
	provider provider.Provider
	opts     provider.Options
	hub      notifier
	logger   *slog.Logger
}

func NewTaskWorker(store jobStore, p provider.Provider, opts provider.Options, hub notifier, logger *slog.Logger) *TaskWorker {
	return &TaskWorker{
		store:    store,
		provider: p,
		opts:     opts,
		hub:      hub,
		logger:   logger,
	}
}

// ProcessTask handles one delivery of a task:process task.
func (w *TaskWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads cannot succeed on redelivery.
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID := payload.TaskID
	log := w.logger.With(slog.String("task_id", taskID))
	log.Info("processing task", slog.String("backend", w.provider.Name()))

	job, err := w.store.MarkInProgress(ctx, taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			// Record expired while the task sat in the queue; nothing left
			// to report a result against.
			log.Warn("job record missing, dropping task")
			return nil
		}
		return fmt.Errorf("failed to mark task in progress: %w", err)
	}

	if job.Status.Terminal() {
		// Redelivery after a crash between completion and ack.
		log.Info("task already completed, skipping", slog.String("status", string(job.Status)))
		return nil
	}
	w.hub.BroadcastStatus(job)

	result, genErr := w.provider.Generate(ctx, job.Prompt, w.opts)
	if genErr != nil {
		return w.handleFailure(ctx, log, taskID, genErr)
	}

	job, err = w.store.CompleteTask(ctx, taskID, result)
	if err != nil {
		return w.handleFailure(ctx, log, taskID, fmt.Errorf("failed to save result: %w", err))
	}
	w.hub.BroadcastStatus(job)

	log.Info("task finished")
	return nil
}

// handleFailure records failure detail on the job and decides whether the
// queue should see the error. Backend-reported failures are terminal for
// the job and swallowed here; unexpected failures are also returned to
// asynq so its retry and archive tracking fires.
func (w *TaskWorker) handleFailure(ctx context.Context, log *slog.Logger, taskID string, err error) error {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		log.Error("backend call failed", slog.String("error", err.Error()))
		w.failJob(ctx, log, taskID, model.JobError{
			Kind:    model.ErrKindProvider,
			Message: err.Error(),
		})
		return nil
	}

	log.Error("task processing failed", slog.String("error", err.Error()))
	jobErr := model.JobError{
		Kind:    model.ErrKindInternal,
		Message: err.Error(),
	}

	retried, okRetried := getRetryCount(ctx)
	maxRetry, okMax := getMaxRetry(ctx)
	if okRetried && okMax && retried < maxRetry {
		if job, markErr := w.store.MarkRetrying(ctx, taskID, jobErr); markErr != nil {
			log.Error("failed to mark task retrying", slog.String("error", markErr.Error()))
		} else {
			w.hub.BroadcastStatus(job)
		}
	} else {
		w.failJob(ctx, log, taskID, jobErr)
	}

	return fmt.Errorf("process task %s: %w", taskID, err)
}

func (w *TaskWorker) failJob(ctx context.Context, log *slog.Logger, taskID string, jobErr model.JobError) {
	job, err := w.store.FailTask(ctx, taskID, jobErr)
	if err != nil {
		log.Error("failed to mark task failed", slog.String("error", err.Error()))
		return
	}
	w.hub.BroadcastStatus(job)
}

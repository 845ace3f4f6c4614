package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/promptline/api/internal/config"
	"github.com/promptline/api/internal/model"
)

const TaskTypeProcess = "task:process"

// ErrTaskNotFound is returned when no job record exists for an ID. The store
// cannot distinguish an ID that was never issued from one whose record
// already expired, so the status endpoint maps this to ACCEPTED.
var ErrTaskNotFound = errors.New("task not found")

// TaskPayload is the asynq task body handed to the worker.
type TaskPayload struct {
	TaskID string `json:"taskId"`
	Prompt string `json:"prompt"`
}

// TaskService owns the job records in Redis and the asynq queue. Submission
// and status reads happen on the request path; the transition methods are
// called by the worker.
type TaskService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	logger      *slog.Logger

	queue      string
	maxRetry   int
	resultTTL  time.Duration
	pendingTTL time.Duration
}

func NewTaskService(redisClient *redis.Client, asynqClient *asynq.Client, cfg *config.Config, logger *slog.Logger) *TaskService {
	return &TaskService{
		redis:       redisClient,
		asynqClient: asynqClient,
		logger:      logger,
		queue:       cfg.Worker.Queue,
		maxRetry:    cfg.Worker.MaxRetry,
		resultTTL:   time.Duration(cfg.Task.ResultTTLSeconds) * time.Second,
		pendingTTL:  time.Duration(cfg.Task.PendingTTLHours) * time.Hour,
	}
}

// Submit creates a job record and enqueues it. It returns as soon as the
// enqueue is durable; processing happens on the worker side.
func (s *TaskService) Submit(ctx context.Context, prompt string) (*model.ProcessResponse, error) {
	taskID := uuid.New().String()

	job := &model.Job{
		ID:        taskID,
		Prompt:    prompt,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newProcessTask(taskID, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(s.queue),
		asynq.MaxRetry(s.maxRetry),
		asynq.Retention(s.resultTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("task submitted",
		slog.String("task_id", taskID),
		slog.String("prompt", truncate(prompt, 50)),
	)

	return &model.ProcessResponse{
		TaskID: taskID,
		Status: model.StatusAccepted,
	}, nil
}

// GetStatus reports the externally visible state of a job. Unknown IDs read
// as ACCEPTED with a null result.
func (s *TaskService) GetStatus(ctx context.Context, taskID string) (*model.StatusResponse, error) {
	job, err := s.getJob(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return &model.StatusResponse{TaskID: taskID, Status: model.StatusAccepted}, nil
		}
		return nil, err
	}

	return &model.StatusResponse{
		TaskID: taskID,
		Status: job.Status.External(),
		Result: job.ExternalResult(),
	}, nil
}

// MarkInProgress transitions a job to in_progress before any backend work
// begins (called by worker). A redelivered job that already reached a
// terminal state is returned unchanged so the caller can skip reprocessing.
func (s *TaskService) MarkInProgress(ctx context.Context, taskID string) (*model.Job, error) {
	job, err := s.getJob(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return job, nil
	}

	job.BeginAttempt(time.Now())

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// MarkRetrying records a failure detail and flags the job as scheduled for
// re-attempt by the queue (called by worker).
func (s *TaskService) MarkRetrying(ctx context.Context, taskID string, jobErr model.JobError) (*model.Job, error) {
	job, err := s.getJob(ctx, taskID)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatusRetrying
	job.Error = &jobErr

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteTask stores the result and marks the job succeeded (called by worker).
func (s *TaskService) CompleteTask(ctx context.Context, taskID string, result string) (*model.Job, error) {
	job, err := s.getJob(ctx, taskID)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatusSucceeded
	job.Result = result
	job.Error = nil
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FailTask stores the failure detail and marks the job failed (called by worker).
func (s *TaskService) FailTask(ctx context.Context, taskID string, jobErr model.JobError) (*model.Job, error) {
	job, err := s.getJob(ctx, taskID)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatusFailed
	job.Error = &jobErr
	job.Result = ""
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Helper methods

// saveJob persists the record. Live jobs keep the long pending TTL; once a
// job is terminal the record expires after the result retention window.
func (s *TaskService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ttl := s.pendingTTL
	if job.Status.Terminal() {
		ttl = s.resultTTL
	}
	return s.redis.Set(ctx, taskKey(job.ID), data, ttl).Err()
}

func (s *TaskService) getJob(ctx context.Context, taskID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func taskKey(taskID string) string {
	return fmt.Sprintf("task:%s", taskID)
}

func newProcessTask(taskID, prompt string) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{TaskID: taskID, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

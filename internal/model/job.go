package model

import "time"

// JobStatus is the internal lifecycle state of a job as stored in Redis.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// External status vocabulary reported by the status endpoint.
const (
	StatusAccepted   = "ACCEPTED"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusFailed     = "FAILED"
	StatusRetrying   = "RETRYING"
)

// External maps an internal job status to the externally reported one.
// Unrecognized statuses pass through verbatim.
func (s JobStatus) External() string {
	switch s {
	case JobStatusQueued:
		return StatusAccepted
	case JobStatusInProgress:
		return StatusInProgress
	case JobStatusSucceeded:
		return StatusFinished
	case JobStatusFailed:
		return StatusFailed
	case JobStatusRetrying:
		return StatusRetrying
	default:
		return string(s)
	}
}

// Terminal reports whether no further transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Error kinds recorded on failed jobs.
const (
	ErrKindProvider        = "ProviderError"
	ErrKindInternal        = "InternalError"
	ErrKindResultRetrieval = "ResultRetrievalError"
)

// JobError is the structured failure detail persisted on a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BeginAttempt transitions a live job to in_progress at pickup. A job picked
// up again after being scheduled for re-attempt counts the redelivery.
// Callers must not invoke this on a terminal job.
func (j *Job) BeginAttempt(now time.Time) {
	if j.Status == JobStatusRetrying {
		j.RetryCount++
	}
	j.Status = JobStatusInProgress
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
}

// ExternalResult is the result value reported to pollers: nil while the job
// is live, the generated text once succeeded, an ErrorPayload once failed.
// A failed record whose error detail is missing still yields a structured
// payload rather than losing the request.
func (j *Job) ExternalResult() interface{} {
	switch j.Status {
	case JobStatusSucceeded:
		return j.Result
	case JobStatusFailed:
		if j.Error == nil {
			return ErrorPayload{
				Error:   ErrKindResultRetrieval,
				Details: "Could not retrieve failure details.",
			}
		}
		return ErrorPayload{Error: j.Error.Kind, Details: j.Error.Message}
	default:
		return nil
	}
}

// Job is the record persisted in Redis for each submitted task.
// The prompt is immutable after submission; status, result and error are
// written only by the worker.
type Job struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Status      JobStatus  `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

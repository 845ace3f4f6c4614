package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusExternal(t *testing.T) {
	tests := []struct {
		internal JobStatus
		external string
	}{
		{JobStatusQueued, "ACCEPTED"},
		{JobStatusInProgress, "IN_PROGRESS"},
		{JobStatusSucceeded, "FINISHED"},
		{JobStatusFailed, "FAILED"},
		{JobStatusRetrying, "RETRYING"},
		{JobStatus("revoked"), "revoked"}, // unrecognized states pass through verbatim
	}

	for _, tt := range tests {
		assert.Equal(t, tt.external, tt.internal.External())
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusSucceeded.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.False(t, JobStatusRetrying.Terminal())
}

func TestBeginAttempt(t *testing.T) {
	now := time.Now()

	t.Run("first pickup", func(t *testing.T) {
		job := &Job{Status: JobStatusQueued}
		job.BeginAttempt(now)

		assert.Equal(t, JobStatusInProgress, job.Status)
		assert.Equal(t, 0, job.RetryCount)
		require.NotNil(t, job.StartedAt)
		assert.Equal(t, now, *job.StartedAt)
	})

	t.Run("redelivery counts the retry and keeps the original start", func(t *testing.T) {
		started := now.Add(-time.Minute)
		job := &Job{Status: JobStatusRetrying, RetryCount: 1, StartedAt: &started}
		job.BeginAttempt(now)

		assert.Equal(t, JobStatusInProgress, job.Status)
		assert.Equal(t, 2, job.RetryCount)
		assert.Equal(t, started, *job.StartedAt)
	})
}

func TestExternalResult(t *testing.T) {
	t.Run("live job has null result", func(t *testing.T) {
		job := &Job{Status: JobStatusInProgress}
		assert.Nil(t, job.ExternalResult())
	})

	t.Run("succeeded job returns result text", func(t *testing.T) {
		job := &Job{Status: JobStatusSucceeded, Result: "generated text"}
		assert.Equal(t, "generated text", job.ExternalResult())
	})

	t.Run("failed job returns structured error", func(t *testing.T) {
		job := &Job{
			Status: JobStatusFailed,
			Error:  &JobError{Kind: ErrKindProvider, Message: "rate limited"},
		}
		assert.Equal(t, ErrorPayload{Error: "ProviderError", Details: "rate limited"}, job.ExternalResult())
	})

	t.Run("failed job without detail reports retrieval error", func(t *testing.T) {
		job := &Job{Status: JobStatusFailed}
		payload, ok := job.ExternalResult().(ErrorPayload)
		assert.True(t, ok)
		assert.Equal(t, ErrKindResultRetrieval, payload.Error)
		assert.NotEmpty(t, payload.Details)
	})

	t.Run("succeeded excludes error and failed excludes result", func(t *testing.T) {
		ok := &Job{Status: JobStatusSucceeded, Result: "out"}
		assert.IsType(t, "", ok.ExternalResult())

		failed := &Job{Status: JobStatusFailed, Error: &JobError{Kind: ErrKindInternal, Message: "boom"}}
		assert.IsType(t, ErrorPayload{}, failed.ExternalResult())
	})
}

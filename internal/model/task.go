package model

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	Task string `json:"task" validate:"required"`
}

// ProcessResponse is returned with 202 Accepted on submission.
type ProcessResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status/:taskId. Result is null until the
// job reaches a terminal state, then either the generated text or an
// ErrorPayload.
type StatusResponse struct {
	TaskID string      `json:"task_id"`
	Status string      `json:"status"`
	Result interface{} `json:"result"`
}

// ErrorPayload is the result value reported for failed jobs.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// RootResponse describes the active backend mode.
type RootResponse struct {
	Message string `json:"message"`
}

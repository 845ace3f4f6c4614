package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
)

// WSStatusMessage is pushed to subscribers on every job state transition.
// Result carries the generated text or an ErrorPayload once terminal.
type WSStatusMessage struct {
	Type       string      `json:"type"`
	TaskID     string      `json:"taskId"`
	Status     string      `json:"status"`
	RetryCount int         `json:"retryCount,omitempty"`
	Result     interface{} `json:"result,omitempty"`
}

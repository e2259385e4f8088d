package provider

import "context"

// TaskState is the upstream's view of one generation task.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateSuccess    TaskState = "success"
	TaskStateFail       TaskState = "fail"
)

// Terminal reports whether the upstream will not change this state again.
func (s TaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateFail
}

// SubmitRequest is one unit of work handed to the upstream provider.
// Input carries the model-specific generation parameters verbatim; the
// settlement engine never interprets them.
type SubmitRequest struct {
	Model       string         `json:"model"`
	CallbackURL string         `json:"callBackUrl,omitempty"`
	Input       map[string]any `json:"input"`
}

// SubmitResult is the upstream's acceptance of a task.
type SubmitResult struct {
	ProviderTaskID string
}

// TaskStatus is the polled view of a task.
type TaskStatus struct {
	ProviderTaskID string
	State          TaskState
	ResultURLs     []string
	FailureMessage string
}

// Client is the outbound surface to the generation provider. Submit is
// bounded by the configured timeout; both calls surface classified
// errors (see Retryable).
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	QueryTask(ctx context.Context, providerTaskID string) (*TaskStatus, error)
}

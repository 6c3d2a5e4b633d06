package domain

import "time"

// RunStatus is the service-side lifecycle state of a run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Pending reports whether the run is still queued or executing.
// Polling continues only while this is true.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress
}

// Run is one execution of an agent against a thread.
type Run struct {
	ID             string     `json:"id"`
	ThreadID       string     `json:"threadId"`
	AgentID        string     `json:"agentId"`
	Status         RunStatus  `json:"status"`
	LastError      *RunError  `json:"lastError,omitempty"`
	RequiredAction []ToolCall `json:"requiredAction,omitempty"`
	Usage          Usage      `json:"usage"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
	CompletedAt    time.Time  `json:"completedAt,omitempty"`
}

// RunError is the service's explanation for a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Usage tracks token consumption for a run.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Outcome is how polling a run ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeExpired        Outcome = "expired"
	OutcomeIncomplete     Outcome = "incomplete"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeTimedOut       Outcome = "timed_out"
)

// OutcomeFor maps a non-pending run status to an outcome.
func OutcomeFor(s RunStatus) Outcome {
	switch s {
	case RunCompleted:
		return OutcomeCompleted
	case RunRequiresAction:
		return OutcomeRequiresAction
	case RunCancelled, RunCancelling:
		return OutcomeCancelled
	case RunExpired:
		return OutcomeExpired
	case RunIncomplete:
		return OutcomeIncomplete
	default:
		return OutcomeFailed
	}
}

// Succeeded reports whether the outcome carries a usable reply.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCompleted
}

// Package agentapi talks to the hosted agent service: agents, threads,
// messages and runs. Backends differ in transport and auth but expose the same
// Service interface so the triage driver never knows which one it is using.
package agentapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/soyeahso/triage/internal/domain"
)

// Service is the interface every agent service backend implements.
type Service interface {
	// CreateAgent registers a new agent and returns it with its service id.
	CreateAgent(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	CreateThread(ctx context.Context) (domain.Thread, error)
	DeleteThread(ctx context.Context, id string) error

	// CreateMessage appends a message to a thread.
	CreateMessage(ctx context.Context, threadID, role, content string) (domain.Message, error)

	// ListMessages returns every message on a thread in ascending creation order.
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)

	// CreateRun starts the agent on the thread. The run starts queued.
	CreateRun(ctx context.Context, threadID, agentID string) (domain.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (domain.Run, error)

	// SubmitToolOutputs answers the function calls of a run in requires_action.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error)

	// Name returns the backend name (e.g., "foundry", "openai").
	Name() string
}

// ServiceError is returned when the agent service answers with a non-2xx status.
type ServiceError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Status == http.StatusNotFound
}

// IsRetryable reports whether err is worth retrying: throttling, server
// errors and timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Status {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset")
}

// StatusLabel condenses an error into a short label for metrics.
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Status > 0 {
		return fmt.Sprintf("%d", svcErr.Status)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

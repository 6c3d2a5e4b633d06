package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a server-side conversation container.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Message is one entry in a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agentId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AssistantReplies returns the text of every assistant message, in order.
func AssistantReplies(msgs []Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			out = append(out, m.Content)
		}
	}
	return out
}

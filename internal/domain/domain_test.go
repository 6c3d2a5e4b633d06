package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- RunStatus tests ---

func TestRunStatusPending(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunQueued, true},
		{RunInProgress, true},
		{RunRequiresAction, false},
		{RunCancelling, false},
		{RunCancelled, false},
		{RunFailed, false},
		{RunCompleted, false},
		{RunIncomplete, false},
		{RunExpired, false},
		{RunStatus("something_new"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Pending())
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   Outcome
	}{
		{RunCompleted, OutcomeCompleted},
		{RunRequiresAction, OutcomeRequiresAction},
		{RunCancelled, OutcomeCancelled},
		{RunCancelling, OutcomeCancelled},
		{RunExpired, OutcomeExpired},
		{RunIncomplete, OutcomeIncomplete},
		{RunFailed, OutcomeFailed},
		{RunStatus("unknown"), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeFor(tt.status))
		})
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	assert.True(t, OutcomeCompleted.Succeeded())
	assert.False(t, OutcomeFailed.Succeeded())
	assert.False(t, OutcomeTimedOut.Succeeded())
}

// --- Tool tests ---

func TestToolValidate(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr string
	}{
		{"function ok", Tool{Kind: ToolFunction, Name: "assign_ticket", Parameters: json.RawMessage(`{"type":"object"}`)}, ""},
		{"function no params", Tool{Kind: ToolFunction, Name: "assign_ticket"}, ""},
		{"connected ok", Tool{Kind: ToolConnectedAgent, Name: "assign_ticket", AgentID: "asst_1"}, ""},
		{"missing name", Tool{Kind: ToolFunction}, "name is required"},
		{"bad schema", Tool{Kind: ToolFunction, Name: "x", Parameters: json.RawMessage(`{`)}, "not valid JSON"},
		{"connected without id", Tool{Kind: ToolConnectedAgent, Name: "x"}, "agent id is required"},
		{"unknown kind", Tool{Kind: "code_interpreter", Name: "x"}, "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tool.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// --- Message tests ---

func TestAssistantReplies(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "Please triage"},
		{Role: RoleAssistant, Content: "Priority: Critical"},
		{Role: RoleAssistant, Content: "Team: Technical Support"},
	}
	assert.Equal(t, []string{"Priority: Critical", "Team: Technical Support"}, AssistantReplies(msgs))
	assert.Empty(t, AssistantReplies([]Message{{Role: RoleUser, Content: "hi"}}))
	assert.Empty(t, AssistantReplies(nil))
}

// --- Ticket tests ---

func TestSampleTicket(t *testing.T) {
	tk := SampleTicket()
	assert.Equal(t, "Critical Database Connection Issue", tk.Subject)
	assert.Contains(t, tk.Description, "500+ users")
	assert.NoError(t, tk.Validate())
}

func TestTicketText(t *testing.T) {
	tk := Ticket{Subject: "Login broken", Description: "Users see a 500 on /login."}
	assert.Equal(t, "Subject: Login broken\nDescription: Users see a 500 on /login.", tk.Text())

	noSubject := Ticket{Description: "Just a description"}
	assert.Equal(t, "Description: Just a description", noSubject.Text())
}

func TestTicketPrompt(t *testing.T) {
	tk := Ticket{Subject: "Refund", Description: "Charged twice."}
	prompt := tk.Prompt()
	assert.Contains(t, prompt, "Please triage this support ticket:")
	assert.Contains(t, prompt, tk.Text())
}

func TestTicketValidate(t *testing.T) {
	assert.Error(t, Ticket{Subject: "only subject"}.Validate())
	assert.Error(t, Ticket{Description: "   "}.Validate())
	assert.NoError(t, Ticket{Description: "x"}.Validate())
}

func TestParseTicket(t *testing.T) {
	text := "\nSubject: Critical Database Connection Issue\nDescription: Customer reports inability to connect.\nThe application is completely down.\n"
	tk := ParseTicket(text)
	assert.Equal(t, "Critical Database Connection Issue", tk.Subject)
	assert.Equal(t, "Customer reports inability to connect.\nThe application is completely down.", tk.Description)
}

func TestParseTicketPlainText(t *testing.T) {
	tk := ParseTicket("My invoice is wrong\r\nPlease fix\n\n")
	assert.Empty(t, tk.Subject)
	assert.Equal(t, "My invoice is wrong\nPlease fix", tk.Description)
}

func TestParseTicketKeepsLayout(t *testing.T) {
	body := "Pool exhausted.\nStack trace:\n  at conn.go:12\n  at pool.go:40\n\nSecond paragraph."
	tk := ParseTicket("Subject: Outage\nDescription: " + body + "\n")
	assert.Equal(t, "Outage", tk.Subject)
	assert.Equal(t, body, tk.Description)
	assert.Contains(t, tk.Prompt(), "Description: "+body)

	tk = ParseTicket("Description:\n" + body)
	assert.Equal(t, body, tk.Description)
}

func TestRunJSON_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Run{ID: "run_1", ThreadID: "thread_1", AgentID: "asst_1", Status: RunQueued})
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"status":"queued"`)
	assert.NotContains(t, s, "lastError")
	assert.NotContains(t, s, "requiredAction")
}

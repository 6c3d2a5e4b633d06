package agentapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/soyeahso/triage/internal/domain"
)

// Wire shapes of the Assistants-compatible REST surface.

type wireAgentRequest struct {
	Model        string     `json:"model"`
	Name         string     `json:"name,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Tools        []wireTool `json:"tools,omitempty"`
}

type wireTool struct {
	Type           string              `json:"type"`
	Function       *wireFunction       `json:"function,omitempty"`
	ConnectedAgent *wireConnectedAgent `json:"connected_agent,omitempty"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireConnectedAgent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type wireAgent struct {
	ID           string     `json:"id"`
	CreatedAt    int64      `json:"created_at"`
	Model        string     `json:"model"`
	Name         string     `json:"name"`
	Instructions string     `json:"instructions"`
	Tools        []wireTool `json:"tools"`
}

type wireThread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type wireMessage struct {
	ID          string               `json:"id"`
	ThreadID    string               `json:"thread_id"`
	Role        string               `json:"role"`
	Content     []wireMessageContent `json:"content"`
	AssistantID string               `json:"assistant_id"`
	RunID       string               `json:"run_id"`
	CreatedAt   int64                `json:"created_at"`
}

type wireMessageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

type wireMessageList struct {
	Data    []wireMessage `json:"data"`
	FirstID string        `json:"first_id"`
	LastID  string        `json:"last_id"`
	HasMore bool          `json:"has_more"`
}

type wireRun struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	Status      string `json:"status"`
	LastError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	RequiredAction *struct {
		Type              string `json:"type"`
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	CreatedAt   int64 `json:"created_at"`
	CompletedAt int64 `json:"completed_at"`
}

type wireToolOutputs struct {
	ToolOutputs []wireToolOutput `json:"tool_outputs"`
}

type wireToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type wireErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toWireTool(t domain.Tool) wireTool {
	switch t.Kind {
	case domain.ToolConnectedAgent:
		return wireTool{
			Type: string(domain.ToolConnectedAgent),
			ConnectedAgent: &wireConnectedAgent{
				ID:          t.AgentID,
				Name:        t.Name,
				Description: t.Description,
			},
		}
	default:
		return wireTool{
			Type: string(domain.ToolFunction),
			Function: &wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
}

func (w wireTool) toDomain() domain.Tool {
	switch {
	case w.ConnectedAgent != nil:
		return domain.Tool{
			Kind:        domain.ToolConnectedAgent,
			Name:        w.ConnectedAgent.Name,
			Description: w.ConnectedAgent.Description,
			AgentID:     w.ConnectedAgent.ID,
		}
	case w.Function != nil:
		return domain.Tool{
			Kind:        domain.ToolFunction,
			Name:        w.Function.Name,
			Description: w.Function.Description,
			Parameters:  w.Function.Parameters,
		}
	default:
		return domain.Tool{Kind: domain.ToolKind(w.Type)}
	}
}

func (w wireAgent) toDomain() domain.Agent {
	a := domain.Agent{
		ID:           w.ID,
		Model:        w.Model,
		Name:         w.Name,
		Instructions: w.Instructions,
		CreatedAt:    unixTime(w.CreatedAt),
	}
	for _, t := range w.Tools {
		a.Tools = append(a.Tools, t.toDomain())
	}
	return a
}

func (w wireMessage) toDomain() domain.Message {
	var parts []string
	for _, c := range w.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text.Value)
		}
	}
	return domain.Message{
		ID:        w.ID,
		ThreadID:  w.ThreadID,
		Role:      w.Role,
		Content:   strings.Join(parts, "\n"),
		AgentID:   w.AssistantID,
		RunID:     w.RunID,
		CreatedAt: unixTime(w.CreatedAt),
	}
}

func (w wireRun) toDomain() domain.Run {
	r := domain.Run{
		ID:          w.ID,
		ThreadID:    w.ThreadID,
		AgentID:     w.AssistantID,
		Status:      domain.RunStatus(w.Status),
		CreatedAt:   unixTime(w.CreatedAt),
		CompletedAt: unixTime(w.CompletedAt),
	}
	if w.LastError != nil && (w.LastError.Code != "" || w.LastError.Message != "") {
		r.LastError = &domain.RunError{Code: w.LastError.Code, Message: w.LastError.Message}
	}
	if w.RequiredAction != nil {
		for _, tc := range w.RequiredAction.SubmitToolOutputs.ToolCalls {
			r.RequiredAction = append(r.RequiredAction, domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if w.Usage != nil {
		r.Usage = domain.Usage{PromptTokens: w.Usage.PromptTokens, CompletionTokens: w.Usage.CompletionTokens}
	}
	return r
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

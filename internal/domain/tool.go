package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ToolKind tags how a tool is reached during a run.
type ToolKind string

const (
	// ToolFunction is answered by the caller through submitted tool outputs.
	ToolFunction ToolKind = "function"
	// ToolConnectedAgent is routed by the service to another agent by id.
	ToolConnectedAgent ToolKind = "connected_agent"
)

// Tool describes a named remote capability an agent may invoke.
type Tool struct {
	Kind        ToolKind        `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema, function tools only
	AgentID     string          `json:"agentId,omitempty"`    // connected agent tools only
}

// Validate checks that the tool is complete for its kind.
func (t Tool) Validate() error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	switch t.Kind {
	case ToolFunction:
		if len(t.Parameters) > 0 && !json.Valid(t.Parameters) {
			return fmt.Errorf("tool %s: parameters are not valid JSON", t.Name)
		}
	case ToolConnectedAgent:
		if t.AgentID == "" {
			return fmt.Errorf("tool %s: connected agent id is required", t.Name)
		}
	default:
		return fmt.Errorf("tool %s: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}

// ToolCall is a request from a run to invoke a function tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ToolOutput answers a ToolCall.
type ToolOutput struct {
	ToolCallID string `json:"toolCallId"`
	Output     string `json:"output"`
}

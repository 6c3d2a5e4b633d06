package domain

import "time"

// Role names the job an agent performs in a triage.
type Role string

const (
	RolePrioritization Role = "prioritization"
	RoleAssignment     Role = "assignment"
	RoleEstimation     Role = "estimation"
	RoleTriage         Role = "triage"
)

// SpecialistRoles are the roles the triage agent delegates to, in tool order.
var SpecialistRoles = []Role{RolePrioritization, RoleAssignment, RoleEstimation}

// Agent is a remote, instruction-configured model persona owned by the agent service.
type Agent struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions,omitempty"`
	Tools        []Tool    `json:"tools,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// AgentSpec is the input to creating an agent.
type AgentSpec struct {
	Role         Role   `json:"role"`
	Model        string `json:"model"`
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	Tools        []Tool `json:"tools,omitempty"`
}

// Package triage runs one support ticket through a team of remote agents:
// three specialists and a coordinator that reaches them through tools.
package triage

import (
	"fmt"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
)

// Member is one agent definition on the roster.
type Member struct {
	Role         domain.Role `json:"role"`
	Name         string      `json:"name"`
	Instructions string      `json:"instructions"`
	Model        string      `json:"model,omitempty"` // empty uses service.model
}

// Roster is the full set of agents a triage creates, specialists first.
type Roster []Member

// DefaultRoster returns the built-in agent definitions.
func DefaultRoster() Roster {
	return Roster{
		{
			Role: domain.RolePrioritization,
			Name: "Ticket Prioritization Agent",
			Instructions: "You are an expert at prioritizing support tickets. Analyze the ticket content and " +
				"assign a priority level (Critical, High, Medium, Low) based on urgency and impact.",
		},
		{
			Role: domain.RoleAssignment,
			Name: "Ticket Assignment Agent",
			Instructions: "You are an expert at assigning support tickets to the right teams. Based on the ticket " +
				"content, assign it to the appropriate team (Technical Support, Billing, Sales, General Support).",
		},
		{
			Role: domain.RoleEstimation,
			Name: "Effort Estimation Agent",
			Instructions: "You are an expert at estimating the effort required to resolve support tickets. Estimate " +
				"the effort in hours (0.5, 1, 2, 4, 8, 16) based on the complexity and scope of the ticket.",
		},
		{
			Role: domain.RoleTriage,
			Name: "Support Ticket Triage Agent",
			Instructions: "You are a support ticket triage coordinator. Your job is to analyze incoming support " +
				"tickets and coordinate with specialized agents to prioritize, assign, and estimate effort for " +
				"each ticket. Use the available tools to get prioritization, assignment, and effort estimation " +
				"from specialist agents.",
		},
	}
}

// RosterFromConfig returns the default roster with per-role overrides applied.
func RosterFromConfig(cfg config.AgentsConfig) Roster {
	overrides := map[domain.Role]config.AgentEntry{
		domain.RolePrioritization: cfg.Prioritization,
		domain.RoleAssignment:     cfg.Assignment,
		domain.RoleEstimation:     cfg.Estimation,
		domain.RoleTriage:         cfg.Triage,
	}

	r := DefaultRoster()
	for i := range r {
		o := overrides[r[i].Role]
		if o.Name != "" {
			r[i].Name = o.Name
		}
		if o.Instructions != "" {
			r[i].Instructions = o.Instructions
		}
		if o.Model != "" {
			r[i].Model = o.Model
		}
	}
	return r
}

// Member returns the definition for role.
func (r Roster) Member(role domain.Role) (Member, bool) {
	for _, m := range r {
		if m.Role == role {
			return m, true
		}
	}
	return Member{}, false
}

// Specialists returns every member except the coordinator, in roster order.
func (r Roster) Specialists() []Member {
	var out []Member
	for _, m := range r {
		if m.Role != domain.RoleTriage {
			out = append(out, m)
		}
	}
	return out
}

// Validate checks that every role is present once with a name.
func (r Roster) Validate() error {
	seen := make(map[domain.Role]bool)
	for _, m := range r {
		if m.Name == "" {
			return fmt.Errorf("roster: %s agent has no name", m.Role)
		}
		if seen[m.Role] {
			return fmt.Errorf("roster: duplicate %s agent", m.Role)
		}
		seen[m.Role] = true
	}
	for _, role := range append(append([]domain.Role{}, domain.SpecialistRoles...), domain.RoleTriage) {
		if !seen[role] {
			return fmt.Errorf("roster: missing %s agent", role)
		}
	}
	return nil
}

// spec builds the create request for m.
func (m Member) spec(defaultModel string, tools []domain.Tool) domain.AgentSpec {
	model := m.Model
	if model == "" {
		model = defaultModel
	}
	return domain.AgentSpec{
		Role:         m.Role,
		Model:        model,
		Name:         m.Name,
		Instructions: m.Instructions,
		Tools:        tools,
	}
}

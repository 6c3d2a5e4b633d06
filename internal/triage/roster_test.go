package triage

import (
	"encoding/json"
	"testing"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestDefaultRoster(t *testing.T) {
	r := DefaultRoster()
	require.NoError(t, r.Validate())
	require.Len(t, r, 4)

	names := make([]string, len(r))
	for i, m := range r {
		names[i] = m.Name
	}
	assert.Equal(t, []string{
		"Ticket Prioritization Agent",
		"Ticket Assignment Agent",
		"Effort Estimation Agent",
		"Support Ticket Triage Agent",
	}, names)

	assert.Contains(t, r[0].Instructions, "(Critical, High, Medium, Low)")
	assert.Contains(t, r[1].Instructions, "(Technical Support, Billing, Sales, General Support)")
	assert.Contains(t, r[2].Instructions, "(0.5, 1, 2, 4, 8, 16)")

	specialists := r.Specialists()
	require.Len(t, specialists, 3)
	for i, role := range domain.SpecialistRoles {
		assert.Equal(t, role, specialists[i].Role)
	}
}

func TestRosterFromConfigOverrides(t *testing.T) {
	r := RosterFromConfig(config.AgentsConfig{
		Assignment: config.AgentEntry{Name: "Router", Model: "gpt-4o-mini"},
		Triage:     config.AgentEntry{Instructions: "Coordinate."},
	})
	require.NoError(t, r.Validate())

	m, ok := r.Member(domain.RoleAssignment)
	require.True(t, ok)
	assert.Equal(t, "Router", m.Name)
	assert.Equal(t, "gpt-4o-mini", m.Model)
	assert.Contains(t, m.Instructions, "assigning support tickets")

	m, _ = r.Member(domain.RoleTriage)
	assert.Equal(t, "Support Ticket Triage Agent", m.Name)
	assert.Equal(t, "Coordinate.", m.Instructions)

	assert.Equal(t, "gpt-4o-mini", r[1].spec("base", nil).Model)
	assert.Equal(t, "base", r[0].spec("base", nil).Model)
}

func TestRosterValidate(t *testing.T) {
	r := DefaultRoster()[:3]
	assert.ErrorContains(t, r.Validate(), "missing triage")

	r = append(DefaultRoster(), DefaultRoster()[0])
	assert.ErrorContains(t, r.Validate(), "duplicate")

	r = DefaultRoster()
	r[2].Name = ""
	assert.ErrorContains(t, r.Validate(), "no name")
}

func TestCatalogDefinitionsOrder(t *testing.T) {
	defs := DefaultCatalog().Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "prioritize_ticket", defs[0].Name)
	assert.Equal(t, "assign_ticket", defs[1].Name)
	assert.Equal(t, "estimate_effort", defs[2].Name)
	assert.Equal(t, "Prioritize a support ticket", defs[0].Description)
}

func TestCatalogBuildConnected(t *testing.T) {
	specialists := map[domain.Role]domain.Agent{
		domain.RolePrioritization: {ID: "asst_p"},
		domain.RoleAssignment:     {ID: "asst_a"},
		domain.RoleEstimation:     {ID: "asst_e"},
	}
	tools, err := DefaultCatalog().Build(config.ToolsConnected, specialists)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	for _, tool := range tools {
		assert.Equal(t, domain.ToolConnectedAgent, tool.Kind)
		assert.Empty(t, tool.Parameters)
	}
	assert.Equal(t, "asst_p", tools[0].AgentID)
	assert.Equal(t, "asst_a", tools[1].AgentID)
	assert.Equal(t, "asst_e", tools[2].AgentID)

	delete(specialists, domain.RoleEstimation)
	_, err = DefaultCatalog().Build(config.ToolsConnected, specialists)
	assert.Error(t, err)
}

func TestCatalogBuildFunction(t *testing.T) {
	tools, err := DefaultCatalog().Build(config.ToolsFunction, nil)
	require.NoError(t, err)
	require.Len(t, tools, 3)

	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(tools[0].Parameters, &schema))
	assert.Equal(t, domain.ToolFunction, tools[0].Kind)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, "string", schema.Properties["ticket_content"]["type"])
	assert.Equal(t, []string{"ticket_content"}, schema.Required)

	_, err = DefaultCatalog().Build("smoke-signals", nil)
	assert.Error(t, err)
}

func TestParseTicketArgs(t *testing.T) {
	assert.Equal(t, "db down", parseTicketArgs(`{"ticket_content":"db down"}`, "fallback"))
	assert.Equal(t, "fallback", parseTicketArgs(`{}`, "fallback"))
	assert.Equal(t, "fallback", parseTicketArgs(`not json`, "fallback"))
}

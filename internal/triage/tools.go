package triage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
)

// ticketSchema is the input every specialist tool takes.
var ticketSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "ticket_content": {
      "type": "string",
      "description": "The full text of the support ticket"
    }
  },
  "required": ["ticket_content"]
}`)

// ToolDef names the capability the coordinator uses to reach one specialist.
type ToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Role        domain.Role `json:"role"`
}

// ToolCatalog maps tool names to the specialist that answers them.
type ToolCatalog struct {
	tools map[string]ToolDef
}

// DefaultCatalog returns the three specialist tools.
func DefaultCatalog() *ToolCatalog {
	c := &ToolCatalog{tools: make(map[string]ToolDef)}
	c.Register(ToolDef{Name: "prioritize_ticket", Description: "Prioritize a support ticket", Role: domain.RolePrioritization})
	c.Register(ToolDef{Name: "assign_ticket", Description: "Assign a support ticket to the appropriate team", Role: domain.RoleAssignment})
	c.Register(ToolDef{Name: "estimate_effort", Description: "Estimate the effort required to resolve a support ticket", Role: domain.RoleEstimation})
	return c
}

// Register adds a tool definition.
func (c *ToolCatalog) Register(def ToolDef) {
	c.tools[def.Name] = def
}

// Get returns a tool definition by name.
func (c *ToolCatalog) Get(name string) (ToolDef, bool) {
	def, ok := c.tools[name]
	return def, ok
}

// Definitions returns all tool definitions in specialist order.
func (c *ToolCatalog) Definitions() []ToolDef {
	order := make(map[domain.Role]int)
	for i, r := range domain.SpecialistRoles {
		order[r] = i
	}
	defs := make([]ToolDef, 0, len(c.tools))
	for _, d := range c.tools {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool {
		if order[defs[i].Role] != order[defs[j].Role] {
			return order[defs[i].Role] < order[defs[j].Role]
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// Build returns the tool descriptors given to the coordinator. In connected
// mode each tool points at the specialist's agent id; in function mode the
// coordinator calls a function that the driver answers.
func (c *ToolCatalog) Build(mode string, specialists map[domain.Role]domain.Agent) ([]domain.Tool, error) {
	var tools []domain.Tool
	for _, def := range c.Definitions() {
		t := domain.Tool{Name: def.Name, Description: def.Description}
		switch mode {
		case config.ToolsConnected, "":
			agent, ok := specialists[def.Role]
			if !ok || agent.ID == "" {
				return nil, fmt.Errorf("tool %s: no %s agent", def.Name, def.Role)
			}
			t.Kind = domain.ToolConnectedAgent
			t.AgentID = agent.ID
		case config.ToolsFunction:
			t.Kind = domain.ToolFunction
			t.Parameters = ticketSchema
		default:
			return nil, fmt.Errorf("unknown tools mode %q", mode)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// ticketArgs is the decoded input of a specialist tool call.
type ticketArgs struct {
	TicketContent string `json:"ticket_content"`
}

// parseTicketArgs extracts ticket_content, falling back to fallback when the
// arguments are empty or malformed.
func parseTicketArgs(raw, fallback string) string {
	var args ticketArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args.TicketContent == "" {
		return fallback
	}
	return args.TicketContent
}

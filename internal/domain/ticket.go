package domain

import (
	"errors"
	"strings"
)

// Ticket is a free-text support ticket.
type Ticket struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// SampleTicket is the ticket triaged when none is supplied.
func SampleTicket() Ticket {
	return Ticket{
		Subject: "Critical Database Connection Issue",
		Description: "Customer reports inability to connect to their production database. " +
			"The application is completely down and affecting 500+ users. Error message indicates " +
			"connection timeout after 30 seconds. Issue started 2 hours ago. Customer is a premium tier account.",
	}
}

// Text renders the ticket as it is shown to the agents.
func (t Ticket) Text() string {
	var b strings.Builder
	if t.Subject != "" {
		b.WriteString("Subject: ")
		b.WriteString(t.Subject)
		b.WriteString("\n")
	}
	b.WriteString("Description: ")
	b.WriteString(t.Description)
	return b.String()
}

// Prompt is the user message posted to the triage thread.
func (t Ticket) Prompt() string {
	return "Please triage this support ticket: \n" + t.Text()
}

// Validate requires a description.
func (t Ticket) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return errors.New("ticket description is required")
	}
	return nil
}

// ParseTicket reads a ticket from free text. The first "Subject:" line sets the
// subject and a "Description:" prefix is dropped. Every other line is kept as
// written, so paragraphs and indented traces reach the agents unchanged.
func ParseTicket(text string) Ticket {
	var t Ticket
	var desc []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case t.Subject == "" && len(desc) == 0 && strings.HasPrefix(trimmed, "Subject:"):
			t.Subject = strings.TrimSpace(strings.TrimPrefix(trimmed, "Subject:"))
		case strings.HasPrefix(trimmed, "Description:"):
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "Description:")); rest != "" || len(desc) > 0 {
				desc = append(desc, rest)
			}
		case trimmed == "" && len(desc) == 0:
		default:
			desc = append(desc, line)
		}
	}
	t.Description = strings.TrimRight(strings.Join(desc, "\n"), "\n")
	return t
}

// Package render prints triage results for people and for scripts.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/triage"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Printer writes human-readable output. Styling is applied only when color is on.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a printer for w. Color is enabled when w is a terminal and
// NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return &Printer{w: w, color: IsTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

// NewPlain returns a printer that never styles its output.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or 80.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *Printer) header(title string) {
	fmt.Fprintf(p.w, "\n%s\n", p.style(headerStyle, "--- "+title+" ---"))
}

// Result prints a finished triage the way an operator reads it: the agents
// that were created, the ticket, the replies, and the cleanup summary.
func (p *Printer) Result(res *triage.Result) {
	for _, a := range res.Agents {
		fmt.Fprintf(p.w, "Created %s: %s\n", a.Name, a.ID)
	}
	if res.ThreadID != "" {
		fmt.Fprintf(p.w, "%s\n", p.style(dimStyle, "Thread: "+res.ThreadID))
	}

	p.header("Processing Support Ticket")
	fmt.Fprintf(p.w, "Ticket: %s\n", res.Ticket.Text())
	if res.TicketTokens > 0 {
		fmt.Fprintln(p.w, p.style(dimStyle, fmt.Sprintf("(%d tokens)", res.TicketTokens)))
	}
	if res.Run.ID != "" {
		fmt.Fprintf(p.w, "Run %s finished with status: %s %s\n",
			res.Run.ID, p.outcome(res.Outcome), p.style(dimStyle, fmt.Sprintf("(%d polls)", res.Attempts)))
	}
	if res.Run.LastError != nil {
		fmt.Fprintf(p.w, "%s %s\n", p.style(errStyle, "Run error:"), res.Run.LastError.Message)
	}

	p.header("Triage Results")
	if len(res.Replies) == 0 {
		fmt.Fprintln(p.w, p.style(dimStyle, "(no reply from the triage agent)"))
	}
	for _, reply := range res.Replies {
		fmt.Fprintf(p.w, "%s %s\n", p.style(labelStyle, "Triage Agent:"), reply)
	}

	if res.Kept {
		p.header("Resources Kept")
		fmt.Fprintf(p.w, "%d agents and thread %s were left in place; run `triage cleanup` to remove them.\n",
			len(res.Agents), res.ThreadID)
		return
	}
	p.header("Cleanup Complete")
	fmt.Fprintf(p.w, "Deleted %d resources in %s\n", res.Deleted, res.Duration.Round(time.Millisecond))
	if res.CleanupError != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.style(warnStyle, "Cleanup errors:"), res.CleanupError)
	}
}

func (p *Printer) outcome(o domain.Outcome) string {
	text := string(o)
	if text == "" {
		text = "unknown"
	}
	switch o {
	case domain.OutcomeCompleted:
		return p.style(okStyle, text)
	case domain.OutcomeTimedOut, domain.OutcomeRequiresAction, domain.OutcomeIncomplete:
		return p.style(warnStyle, text)
	default:
		return p.style(errStyle, text)
	}
}

// Roster prints the agent team and the tools the coordinator is given.
func (p *Printer) Roster(roster triage.Roster, catalog *triage.ToolCatalog, model string) {
	p.header("Agents")
	for _, m := range roster {
		agentModel := m.Model
		if agentModel == "" {
			agentModel = model
		}
		fmt.Fprintf(p.w, "%s %s\n", p.style(labelStyle, m.Name), p.style(dimStyle, "("+string(m.Role)+", "+agentModel+")"))
		fmt.Fprintf(p.w, "  %s\n", m.Instructions)
	}
	p.header("Tools")
	for _, def := range catalog.Definitions() {
		fmt.Fprintf(p.w, "%-18s -> %-15s %s\n", def.Name, def.Role, p.style(dimStyle, def.Description))
	}
}

// History prints one line per past triage, newest first.
func (p *Printer) History(records []store.TriageRecord) {
	if len(records) == 0 {
		fmt.Fprintln(p.w, "No triages recorded.")
		return
	}
	for _, r := range records {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "unfinished"
		}
		fmt.Fprintf(p.w, "%s  %s  %-12s %s\n",
			p.style(dimStyle, r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			r.ID[:min(8, len(r.ID))],
			p.outcome(domain.Outcome(outcome)),
			truncate(r.Subject, max(20, Width(p.w)-40)))
	}
}

// Triage prints a single history record in full.
func (p *Printer) Triage(r store.TriageRecord, resources []store.Resource) {
	p.header("Triage " + r.ID)
	fmt.Fprintf(p.w, "Subject:  %s\n", r.Subject)
	fmt.Fprintf(p.w, "Backend:  %s (%s)\n", r.Backend, r.Model)
	fmt.Fprintf(p.w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(p.w, "Finished: %s (%s)\n", r.FinishedAt.Local().Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(p.w, "Outcome:  %s after %d polls\n", p.outcome(domain.Outcome(r.Outcome)), r.Attempts)
	if r.PromptTokens+r.CompletionTokens > 0 {
		fmt.Fprintf(p.w, "Tokens:   %d prompt, %d completion\n", r.PromptTokens, r.CompletionTokens)
	}
	if r.Error != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.style(errStyle, "Error:"), r.Error)
	}

	p.header("Ticket")
	fmt.Fprintln(p.w, r.Body)
	p.header("Triage Results")
	if r.Reply == "" {
		fmt.Fprintln(p.w, p.style(dimStyle, "(no reply)"))
	} else {
		fmt.Fprintf(p.w, "%s %s\n", p.style(labelStyle, "Triage Agent:"), r.Reply)
	}

	if len(resources) > 0 {
		p.header("Resources")
		p.Resources(resources)
	}
}

// Resources prints ledger entries with their deletion state.
func (p *Printer) Resources(resources []store.Resource) {
	for _, r := range resources {
		state := p.style(warnStyle, "outstanding")
		if r.DeletedAt != nil {
			state = p.style(okStyle, "deleted")
		}
		fmt.Fprintf(p.w, "%-6s %-40s %-11s %s\n", r.Kind, r.RemoteID, state, p.style(dimStyle, r.Name))
	}
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

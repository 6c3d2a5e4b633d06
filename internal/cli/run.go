package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/render"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/spf13/cobra"
)

type runFlags struct {
	subject     string
	description string
	file        string
	backend     string
	model       string
	endpoint    string
	tools       string
	timeout     time.Duration
	jsonOut     bool
	keep        bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [-]",
		Short: "Triage a support ticket",
		Long: "Create the agent team, post the ticket, wait for the triage agent's answer,\n" +
			"print it and delete every remote resource. Without a ticket the built-in\n" +
			"sample ticket is used. Pass - (or --file -) to read the ticket from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			applyRunFlags(&c, f)
			if err := validate(&c); err != nil {
				return err
			}

			if len(args) == 1 {
				if args[0] != "-" {
					return fmt.Errorf("unexpected argument %q (use --file or -)", args[0])
				}
				f.file = "-"
			}
			ticket, err := readTicket(cmd.InOrStdin(), f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runTriage(ctx, cmd.OutOrStdout(), c, ticket, f)
		},
	}

	cmd.Flags().StringVar(&f.subject, "subject", "", "ticket subject")
	cmd.Flags().StringVar(&f.description, "description", "", "ticket description")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read the ticket from a file (- for stdin)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "override service backend (foundry, openai)")
	cmd.Flags().StringVar(&f.model, "model", "", "override model deployment name")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "override project endpoint")
	cmd.Flags().StringVar(&f.tools, "tools", "", "how the triage agent reaches specialists (connected, function)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "override how long to wait for the run")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&f.keep, "keep", false, "leave agents and threads in place (see `triage cleanup`)")

	return cmd
}

func applyRunFlags(c *config.Config, f runFlags) {
	if f.backend != "" {
		c.Service.Backend = strings.ToLower(f.backend)
	}
	if f.model != "" {
		c.Service.Model = f.model
	}
	if f.endpoint != "" {
		c.Service.Endpoint = f.endpoint
	}
	if f.tools != "" {
		c.Tools.Mode = strings.ToLower(f.tools)
	}
	if f.timeout > 0 {
		c.Poll.Timeout = f.timeout
	}
}

// readTicket builds the ticket from flags, a file or stdin.
func readTicket(stdin io.Reader, f runFlags) (domain.Ticket, error) {
	var ticket domain.Ticket
	switch {
	case f.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return ticket, fmt.Errorf("reading ticket from stdin: %w", err)
		}
		ticket = domain.ParseTicket(string(data))
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return ticket, fmt.Errorf("reading ticket: %w", err)
		}
		ticket = domain.ParseTicket(string(data))
	case f.description != "":
		ticket = domain.Ticket{Description: f.description}
	default:
		ticket = domain.SampleTicket()
	}
	if f.subject != "" {
		ticket.Subject = f.subject
	}
	return ticket, ticket.Validate()
}

// runTriage wires the service, ledger, hooks and metrics into a driver and
// triages one ticket.
func runTriage(ctx context.Context, out io.Writer, c config.Config, ticket domain.Ticket, f runFlags) error {
	svc, err := newService(ctx, c)
	if err != nil {
		return err
	}
	rec := metrics.New()
	svc = agentapi.Instrument(svc, rec)

	db, err := openStore(c)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	hookMgr := hooks.NewManager(log)
	if err := hookMgr.RegisterConfig(c.Hooks); err != nil {
		return err
	}

	driver, err := triage.NewDriver(svc, triage.Options{
		Model:           c.Service.Model,
		ToolsMode:       c.Tools.Mode,
		Poll:            c.Poll,
		Roster:          triage.RosterFromConfig(c.Agents),
		Keep:            f.keep,
		MaxTicketTokens: c.Ticket.MaxTokens,
		Endpoint:        c.Service.Endpoint,
		Ledger:          db,
		Hooks:           hookMgr,
		Metrics:         rec,
	}, log)
	if err != nil {
		return err
	}

	log.Info().
		Str("backend", svc.Name()).
		Str("model", c.Service.Model).
		Str("tools", c.Tools.Mode).
		Msg("triaging ticket")

	res, triageErr := driver.Triage(ctx, ticket)
	if res != nil {
		if f.jsonOut {
			if err := render.JSON(out, res); err != nil {
				return err
			}
		} else {
			render.New(out).Result(res)
		}
	}

	if c.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(c.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Str("path", c.Metrics.Textfile).Msg("writing metrics textfile failed")
		}
	}

	if triageErr != nil {
		return triageErr
	}
	if !res.Outcome.Succeeded() {
		return &incompleteError{outcome: res.Outcome}
	}
	return nil
}

// incompleteError reports a run that ended without a usable reply. The
// transcript has already been printed.
type incompleteError struct {
	outcome domain.Outcome
}

func (e *incompleteError) Error() string {
	return fmt.Sprintf("triage run ended %s", e.outcome)
}

package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/credential"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show triage status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			// Show paths
			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			c, err := loadedConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults and environment)")
			}

			endpoint := c.Service.Endpoint
			if endpoint == "" {
				endpoint = "(not set)"
			}
			model := c.Service.Model
			if model == "" {
				model = "(not set)"
			}
			fmt.Fprintf(out, "Service:  backend=%s endpoint=%s\n", c.Service.Backend, endpoint)
			fmt.Fprintf(out, "Model:    %s\n", model)
			fmt.Fprintf(out, "Tools:    %s\n", c.Tools.Mode)
			fmt.Fprintf(out, "Poll:     every %s-%s, x%.1f, timeout %s\n",
				c.Poll.InitialInterval, c.Poll.MaxInterval, c.Poll.Multiplier, c.Poll.Timeout)

			// The CLI and managed identity sources fetch one token to prove they work.
			if cred, err := credential.Resolve(cmd.Context(), c.Auth); err != nil {
				fmt.Fprintf(out, "Auth:     mode=%s (%v)\n", c.Auth.Mode, err)
			} else {
				fmt.Fprintf(out, "Auth:     mode=%s credential=%s\n", c.Auth.Mode, cred.Kind)
			}

			// Ledger
			if !c.Store.Enabled {
				fmt.Fprintln(out, "Store:    disabled")
			} else if db, err := openStore(c); err != nil {
				fmt.Fprintf(out, "Store:    error: %v\n", err)
			} else {
				outstanding, oerr := db.Outstanding(cmd.Context())
				triages, terr := db.ListTriages(cmd.Context(), 0)
				db.Close()
				if oerr != nil || terr != nil {
					fmt.Fprintf(out, "Store:    error: %v\n", firstErr(oerr, terr))
				} else {
					fmt.Fprintf(out, "Store:    %d triage(s), %d outstanding resource(s)\n", len(triages), len(outstanding))
				}
			}

			hookMgr := hooks.NewManager(log)
			if err := hookMgr.RegisterConfig(c.Hooks); err != nil {
				fmt.Fprintf(out, "Hooks:    error: %v\n", err)
			}
			for _, r := range hookMgr.Registered() {
				fmt.Fprintf(out, "Hooks:    %-14s %s\n", r.Event, r.Name)
			}
			if c.Metrics.Textfile != "" {
				fmt.Fprintf(out, "Metrics:  %s\n", c.Metrics.Textfile)
			}

			// Validation
			issues := config.Validate(&c)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

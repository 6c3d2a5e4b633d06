package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/render"
	"github.com/soyeahso/triage/internal/store"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete remote agents and threads left behind by earlier runs",
		Long: "Every agent and thread a triage creates is recorded in the local ledger.\n" +
			"cleanup deletes the ones that were never confirmed deleted, for example\n" +
			"after --keep or an interrupted run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			db, err := requireStore(c)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outstanding, err := db.Outstanding(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(outstanding) == 0 {
				fmt.Fprintln(out, "Nothing to clean up.")
				return nil
			}

			if dryRun {
				render.New(out).Resources(outstanding)
				fmt.Fprintf(out, "%d resource(s) would be deleted\n", len(outstanding))
				return nil
			}

			svc, err := newService(ctx, c)
			if err != nil {
				return err
			}
			deleted, skipped, err := deleteOutstanding(ctx, svc, c.Service.Endpoint, db, outstanding)
			fmt.Fprintf(out, "Deleted %d resource(s)", deleted)
			if skipped > 0 {
				fmt.Fprintf(out, ", skipped %d from another backend or project", skipped)
			}
			fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be deleted without deleting")
	return cmd
}

// deleteOutstanding deletes agents before threads and marks each one in the
// ledger. A 404 means someone else already removed it, which only holds when
// the resource was created against the same backend and endpoint.
func deleteOutstanding(ctx context.Context, svc agentapi.Service, endpoint string, db *store.DB, resources []store.Resource) (deleted, skipped int, err error) {
	var errs []error
	for _, r := range resources {
		if r.Backend != "" && r.Backend != svc.Name() {
			log.Warn().Str("id", r.RemoteID).Str("backend", r.Backend).Msg("skipping resource from another backend")
			skipped++
			continue
		}
		if !sameEndpoint(r.Endpoint, endpoint) {
			log.Warn().Str("id", r.RemoteID).Str("endpoint", r.Endpoint).Msg("skipping resource from another project")
			skipped++
			continue
		}

		var derr error
		switch r.Kind {
		case store.KindAgent:
			derr = svc.DeleteAgent(ctx, r.RemoteID)
		case store.KindThread:
			derr = svc.DeleteThread(ctx, r.RemoteID)
		default:
			derr = fmt.Errorf("unknown resource kind %q", r.Kind)
		}
		if derr != nil && !agentapi.IsNotFound(derr) {
			log.Error().Err(derr).Str("kind", r.Kind).Str("id", r.RemoteID).Msg("cleanup failed")
			errs = append(errs, fmt.Errorf("deleting %s %s: %w", r.Kind, r.RemoteID, derr))
			continue
		}

		if merr := db.MarkDeleted(ctx, r.Kind, r.RemoteID); merr != nil {
			errs = append(errs, merr)
			continue
		}
		log.Info().Str("kind", r.Kind).Str("id", r.RemoteID).Msg("deleted")
		deleted++
	}
	return deleted, skipped, errors.Join(errs...)
}

// sameEndpoint compares endpoints ignoring case and a trailing slash. Ledger
// rows written before endpoints were recorded match anything.
func sameEndpoint(recorded, current string) bool {
	if recorded == "" {
		return true
	}
	norm := func(s string) string { return strings.ToLower(strings.TrimRight(s, "/")) }
	return norm(recorded) == norm(current)
}

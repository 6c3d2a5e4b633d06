package cli

import (
	"errors"
	"fmt"

	"github.com/soyeahso/triage/internal/render"
	"github.com/soyeahso/triage/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past triages",
		Args:  cobra.NoArgs,
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

			records, err := db.ListTriages(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if records == nil {
					records = []store.TriageRecord{}
				}
				return render.JSON(cmd.OutOrStdout(), records)
			}
			render.New(cmd.OutOrStdout()).History(records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of triages to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")

	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one triage with its reply and remote resources",
		Args:  cobra.ExactArgs(1),
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

			ctx := cmd.Context()
			rec, err := db.GetTriage(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("triage not found: %s", args[0])
			}
			if err != nil {
				return err
			}
			resources, err := db.ResourcesForTriage(ctx, rec.ID)
			if err != nil {
				return err
			}

			if jsonOut {
				return render.JSON(cmd.OutOrStdout(), struct {
					*store.TriageRecord
					Resources []store.Resource `json:"resources"`
				}{rec, resources})
			}
			render.New(cmd.OutOrStdout()).Triage(*rec, resources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

package cli

import (
	"github.com/soyeahso/triage/internal/render"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Show the agent team and the tools the triage agent is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			roster := triage.RosterFromConfig(c.Agents)
			if err := roster.Validate(); err != nil {
				return err
			}
			catalog := triage.DefaultCatalog()

			if jsonOut {
				return render.JSON(cmd.OutOrStdout(), struct {
					Model string           `json:"model"`
					Tools string           `json:"toolsMode"`
					Team  triage.Roster    `json:"agents"`
					Defs  []triage.ToolDef `json:"tools"`
				}{c.Service.Model, c.Tools.Mode, roster, catalog.Definitions()})
			}
			render.New(cmd.OutOrStdout()).Roster(roster, catalog, c.Service.Model)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

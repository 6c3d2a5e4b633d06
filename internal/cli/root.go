package cli

import (
	"io"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths     config.Paths
	cfg       config.Config
	cfgErr    error
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Triage support tickets with a team of hosted agents",
		Long: "triage creates prioritization, assignment and effort estimation agents plus a\n" +
			"coordinator on a hosted agent service, runs a support ticket through them and\n" +
			"cleans every remote resource up afterwards.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}

			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// A broken config file must not lock out `config unset`; commands
			// that need it check cfgErr.
			cfg, cfgErr = config.Load(paths.Config)
			if cfgErr != nil {
				cfg = config.Defaults()
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			log, logCloser, err = logging.NewWithOptions(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.triage/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newAgentsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadedConfig returns the config read before the command ran, or the error
// that reading it produced.
func loadedConfig() (config.Config, error) {
	return cfg, cfgErr
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

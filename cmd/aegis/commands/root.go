package commands

import (
	"github.com/MEKXH/aegis/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aegis",
		Short: "Aegis - Safety decision pipeline for autonomous agents",
		Long: `Aegis intercepts agent actions before execution and decides whether
they proceed, warn, get blocked, or wait for a human decision.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewCheckCmd(),
		NewServeCmd(),
		NewApprovalCmd(),
		NewLevelCmd(),
		NewPrinciplesCmd(),
		NewAuditCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}

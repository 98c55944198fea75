package main

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/click-redirector/internal/config"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "redirector",
		Short: "Short-link redirector with click tracking and a live traffic feed.",
		Long: `redirector resolves short links into a tracked redirect chain, records
every click, and streams live traffic to connected observers.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the REDIRECTOR_ prefix")

	load := func() (config.Config, error) {
		return config.Load(cfgFile)
	}
	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newTokenCmd())
	return cmd
}

type configLoader func() (config.Config, error)

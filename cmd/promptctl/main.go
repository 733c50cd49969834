package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "promptctl",
		Short: "Manage versioned prompt templates",
		Long: `promptctl imports, inspects and rolls back the prompt templates used by
the article workflows. Every write goes through the same validation,
versioning and audit trail as the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (.env or YAML)")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newActivateCmd(opts))
	cmd.AddCommand(newAuditCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newRenderCmd(opts))
	return cmd
}

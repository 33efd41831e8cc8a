// Package cli defines the replica command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiyo/replica-builder/internal/logger"
)

const version = "0.1.0"

// Execute runs the CLI
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "replica",
		Short: "Replica builds and serves AI-generated documentation sites",
		Long: `Replica dispatches a GitHub Actions workflow that provisions a
documentation micro-site, and streams the build's progress back to clients.

Examples:
  replica serve                       # Start the HTTP front-end
  replica serve --port 8080
  replica generate "Redis internals"  # Generate site content locally`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.NewFromEnv()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger.SetLogger(log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "replica version "+version)
				return err
			}
			return cmd.Help()
		},
	}

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newGenerateCommand())

	return cmd
}

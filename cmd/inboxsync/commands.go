// commands.go contains the cobra command definitions and their flag
// configurations. Each builder wires a command to its handler.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "inboxsync.yaml"

// buildRunCmd creates the "run" command that starts the sync engine.
func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the inbox synchronization engine",
		Long: `Start the engine and keep it running until SIGINT/SIGTERM.

The engine will:
1. Load configuration from the specified file
2. Authenticate the session from the configured token
3. Load the conversation list through the HTTP gateway
4. Open the push channel and react to inbound frames
5. Serve Prometheus metrics when metrics.addr is set`,
		Example: `  # Start with the default config
  inboxsync run

  # Start with a custom config
  inboxsync run --config /etc/inboxsync/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	return cmd
}

// buildStatusCmd creates the "status" command: a one-shot connectivity and
// identity check against the backend.
func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check backend connectivity and show the configured identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxsync %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

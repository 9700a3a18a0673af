// Package main provides the CLI entry point for the inboxsync engine.
//
// inboxsync keeps a local customer-support inbox consistent with the backend:
// it maintains the push-channel connection, reacts to inbound message frames,
// and serves Prometheus metrics about connection health and event flow.
//
// # Basic Usage
//
// Run the sync engine:
//
//	inboxsync run --config inboxsync.yaml
//
// Check backend connectivity and the configured identity:
//
//	inboxsync status
//
// # Environment Variables
//
// Any ${VAR} reference inside the configuration file is expanded from the
// environment, so tokens can stay out of the file:
//
//   - INBOXSYNC_TOKEN: typical home for the backend API token
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inboxsync",
		Short: "Real-time synchronization engine for a customer-support inbox",
		Long: `inboxsync mirrors a company's support inbox locally and keeps it
consistent in real time: conversations load over the backend HTTP API, and a
persistent push channel delivers new customer messages as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(buildRunCmd(), buildStatusCmd(), buildVersionCmd())
	return cmd
}

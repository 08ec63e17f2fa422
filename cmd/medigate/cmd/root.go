// Package cmd provides the CLI commands for MediGate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medicos-health/medigate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "medigate",
	Short: "MediGate - policy-gated MCP gateway for medication workflows",
	Long: `MediGate is an MCP server that fronts a medication management backend.

Every tool call is resolved against a registry, checked against the
ArmorIQ policy engine when the tool touches patient data, executed with
argument guards, and written to an immutable audit trail.

Quick start:
  1. Create a config file: medigate.yaml
  2. Run: medigate start

Configuration:
  Config is loaded from medigate.yaml in the current directory,
  $HOME/.medigate/, or /etc/medigate/.

  Environment variables can override config values with the MEDIGATE_ prefix.
  Example: MEDIGATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway
  hash-key    Generate an Argon2id hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./medigate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

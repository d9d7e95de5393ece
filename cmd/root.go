// Package cmd implements the claude-remote command line interface.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/config"
)

var (
	flagLogRoot string
	flagDBPath  string
	flagAddr    string
	flagPoll    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "claude-remote",
	Short: "Observability and control plane for Claude Code sessions",
	Long: "Index Claude Code session logs into a searchable database, stream live\n" +
		"updates, and attach to running sessions from anywhere on your network.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogRoot, "log-root", "", "Session log root (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Index database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "HTTP listen address (default from config)")
	rootCmd.PersistentFlags().DurationVar(&flagPoll, "poll-interval", 0, "Log poll interval (default from config)")
}

// loadConfig merges the config file with command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagLogRoot != "" {
		cfg.General.LogRoot = flagLogRoot
	}
	if flagDBPath != "" {
		cfg.General.DBPath = flagDBPath
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagPoll > 0 {
		cfg.Indexer.PollInterval = flagPoll
	}
	return cfg, nil
}

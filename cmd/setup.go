package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session log root").
				Description("Directory tree containing Claude Code session JSONL files").
				Value(&cfg.General.LogRoot),
			huh.NewInput().
				Title("Index database path").
				Value(&cfg.General.DBPath),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&cfg.Server.Addr),
			huh.NewInput().
				Title("Claude binary").
				Value(&cfg.Tmux.ClaudeBin),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", config.ConfigPath())
	return nil
}

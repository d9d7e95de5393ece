package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/procscan"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/store"
	"github.com/cmericli/claude-remote/internal/tmux"
	"github.com/cmericli/claude-remote/internal/tui"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live terminal dashboard of sessions",
	RunE:  runTop,
}

func init() {
	rootCmd.AddCommand(topCmd)
}

func runTop(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.General.DBPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = st.Close() }()

	muxCtl := tmux.New(cfg.Tmux.TmuxBin, cfg.Tmux.ClaudeBin, cfg.Tmux.SessionPrefix, nil, st.WorkingDir)
	registry := procscan.New(cfg.General.LogRoot, cfg.Tmux.ClaudeBin, muxCtl.ShortIDs)
	facade := query.New(st, registry, nil)

	_, err = tea.NewProgram(tui.NewApp(facade), tea.WithAltScreen()).Run()
	return err
}

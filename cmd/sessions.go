package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/store"
)

var (
	flagSessionsProject string
	flagSessionsLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List indexed sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVarP(&flagSessionsProject, "project", "p", "", "Restrict to one project")
	sessionsCmd.Flags().IntVarP(&flagSessionsLimit, "limit", "l", 30, "Maximum sessions")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.General.DBPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = st.Close() }()

	sessions, total, err := st.Sessions(store.SessionFilter{
		Project: flagSessionsProject,
		Limit:   flagSessionsLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPROJECT\tBRANCH\tMSGS\tTOKENS\tLAST MESSAGE")
	for _, s := range sessions {
		label := s.Slug
		if label == "" {
			label = s.SessionID
		}
		if len(label) > 28 {
			label = label[:28]
		}
		last := ""
		if !s.LastMessage.IsZero() {
			last = s.LastMessage.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			label, s.ProjectDir, s.GitBranch, s.MessageCount, s.TotalTokens(), last)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d sessions\n", len(sessions), total)
	return nil
}

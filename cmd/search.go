package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/store"
)

var (
	flagSearchProject string
	flagSearchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across indexed messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&flagSearchProject, "project", "p", "", "Restrict to one project")
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "l", 20, "Maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.General.DBPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = st.Close() }()

	hits, err := st.Search(strings.Join(args, " "), store.SearchFilter{
		Project: flagSearchProject,
		Limit:   flagSearchLimit,
	})
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tROLE\tWHEN\tSNIPPET")
	for _, h := range hits {
		label := h.Slug
		if label == "" {
			label = h.SessionID
		}
		if len(label) > 28 {
			label = label[:28]
		}
		snippet := strings.ReplaceAll(h.Snippet, "\n", " ")
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", label, h.Role, h.Timestamp.Format("2006-01-02 15:04"), snippet)
	}
	return w.Flush()
}

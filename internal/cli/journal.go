package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Plexify-AI/plexifybid-sub001/internal/notify"
)

func newJournalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the local completion journal",
		Long: `Print <home>/journal.md, written when notify.journal is enabled. Each completed
session appends one section with its next task.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			s, err := notify.ReadJournal(notify.JournalPath(e.Home), limit)
			if err != nil {
				return err
			}
			if s == "" {
				if !e.Config.Notify.Journal {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "journal is disabled; set notify.journal: true in config.yaml")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "(no journal entries yet)")
				return nil
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit-bytes", 0, "Only print the last N bytes (0 = all)")
	return cmd
}

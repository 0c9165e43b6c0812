package cli

import (
	"fmt"
	"time"

	"litman/config"
	"litman/filestore"
	"litman/models"

	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show table counts, the library checksum and recent syncs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				st, err := store.Status(cmd.Context())
				if err != nil {
					return err
				}
				entries, err := store.SyncHistory(cmd.Context(), history)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styles.heading.Render("litman "+a.cfg.Mode+" node"))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("database"), a.cfg.DatabasePath)
				if a.cfg.Mode == config.ModeClient && a.cfg.Client.ServerURL != "" {
					fmt.Fprintf(out, "  %s %s\n", styles.label.Render("server"), a.cfg.Client.ServerURL)
				}
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("checksum"), st.Checksum)
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("last sync"), formatTime(st.LastSync))
				fmt.Fprintf(out, "  %s %d\n", styles.label.Render("pending changes"), st.PendingChanges)

				fmt.Fprintln(out, styles.heading.Render("Tables"))
				printCounts(out, st.Counts)
				fmt.Fprintln(out, styles.heading.Render("Links"))
				printCounts(out, st.LinkCounts)

				fmt.Fprintln(out, styles.heading.Render("Sync history"))
				if len(entries) == 0 {
					fmt.Fprintln(out, styles.muted.Render("  none"))
				}
				for _, e := range entries {
					fmt.Fprintf(out, "  #%-4d %-10s %s\n", e.Seq, e.Kind, e.SyncedAt.UTC().Format(time.RFC3339Nano))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&history, "history", 10, "Number of sync-log entries to show")
	return cmd
}

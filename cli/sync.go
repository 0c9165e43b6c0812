package cli

import (
	"errors"
	"fmt"
	"time"

	"litman/filestore"
	"litman/models"
	"litman/syncer"

	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
)

func (a *app) pushCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send local changes to the server and merge its changes back",
		Long: "Exports every change since the last sync, sends it to the server and imports the\n" +
			"server's changes in reply. --since overrides the low-water mark.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *syncer.Client, _ *models.Store) error {
				var (
					res *syncer.PushResult
					err error
				)
				if since != "" {
					mark, perr := time.Parse(time.RFC3339Nano, since)
					if perr != nil {
						return serr.Wrap(perr, "--since must be an RFC 3339 timestamp")
					}
					res, err = c.PushSince(cmd.Context(), mark)
				} else {
					res, err = c.PushToServer(cmd.Context())
				}
				if errors.Is(err, syncer.ErrNoSyncHistory) {
					return serr.New("no sync history: run `litman bootstrap` first, or push with --since")
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styles.ok.Render("Push complete"))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("mark"), res.Mark.Format(time.RFC3339Nano))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("synced at"), res.SyncedAt.Format(time.RFC3339Nano))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("sent"), formatCounts(res.Sent))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("received"), formatCounts(res.Received))
				fmt.Fprintf(out, "  %s %s\n", styles.label.Render("took"), res.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Low-water mark to export from (RFC 3339)")
	return cmd
}

func (a *app) bootstrapCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Replace the local library with the server's",
		Long: "Downloads the server's full library, replaces the local one with it and fetches\n" +
			"missing attachments. Local changes that were never pushed are lost.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					"Replace the local library with the copy on "+a.cfg.Client.ServerURL+"?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Bootstrap cancelled.")
					return nil
				}
			}

			return a.withClient(cmd.Context(), func(c *syncer.Client, _ *models.Store) error {
				res, err := c.BootstrapFromServer(cmd.Context())
				if err != nil {
					return err
				}
				printBootstrap(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func printBootstrap(cmd *cobra.Command, res *syncer.BootstrapResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.ok.Render("Bootstrap complete"))
	fmt.Fprintf(out, "  %s %s\n", styles.label.Render("as of"), res.BootstrappedAt.Format(time.RFC3339Nano))
	printCounts(out, res.Counts)
	fmt.Fprintf(out, "  %s %d\n", styles.label.Render("files fetched"), res.FilesFetched)
	if len(res.MissingFiles) > 0 {
		fmt.Fprintln(out, styles.warn.Render(fmt.Sprintf("  %d attachment(s) could not be fetched:", len(res.MissingFiles))))
		for _, id := range res.MissingFiles {
			fmt.Fprintf(out, "    %s\n", id)
		}
	}
	if res.FileError != "" {
		fmt.Fprintln(out, styles.warn.Render("  attachments not reconciled: "+res.FileError))
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare the local library with the server's (read only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *syncer.Client, _ *models.Store) error {
				report, err := c.Verify(cmd.Context())
				if err != nil {
					return err
				}
				printReport(cmd, report)
				if !report.Consistent {
					return errInconsistent
				}
				return nil
			})
		},
	}
}

var errInconsistent = errors.New("local and server libraries differ")

func printReport(cmd *cobra.Command, report *syncer.VerifyReport) {
	out := cmd.OutOrStdout()
	if report.Consistent {
		fmt.Fprintln(out, styles.ok.Render("Local library matches the server"))
		return
	}

	for _, td := range report.Tables {
		fmt.Fprintln(out, styles.heading.Render(td.Table))
		for _, id := range td.OnlyLocal {
			fmt.Fprintf(out, "  %s %s\n", styles.warn.Render("only local "), id)
		}
		for _, id := range td.OnlyRemote {
			fmt.Fprintf(out, "  %s %s\n", styles.warn.Render("only server"), id)
		}
		for _, rd := range td.Changed {
			fmt.Fprintf(out, "  %s %s.%s: %q != %q\n", styles.warn.Render("changed    "), rd.ID, rd.Column, rd.Local, rd.Remote)
			if rd.Patch != "" {
				fmt.Fprintln(out, styles.muted.Render(indent(rd.Patch, "      ")))
			}
		}
	}
	for _, ld := range report.Links {
		fmt.Fprintln(out, styles.heading.Render(ld.Link))
		for _, p := range ld.OnlyLocal {
			fmt.Fprintf(out, "  %s %s / %s\n", styles.warn.Render("only local "), p.A, p.B)
		}
		for _, p := range ld.OnlyRemote {
			fmt.Fprintf(out, "  %s %s / %s\n", styles.warn.Render("only server"), p.A, p.B)
		}
	}
}

func (a *app) pruneCmd() *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete change-log entries older than a mark",
		Long: "Deletes change-log entries recorded before --before. The mark may not be later\n" +
			"than the last sync. --before takes an RFC 3339 timestamp or an age such as 720h.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mark, err := parseMark(before, time.Now())
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store *models.Store, _ *filestore.Store) error {
				removed, err := store.PruneChangeLogs(cmd.Context(), mark)
				if errors.Is(err, models.ErrPruneBeyondSync) {
					return serr.New("--before is later than the last sync; nothing pruned")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d change-log entries older than %s\n",
					removed, mark.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Prune entries older than this (RFC 3339 or age, e.g. 720h)")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

// parseMark reads an RFC 3339 timestamp or a duration counted back from now.
func parseMark(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, serr.New("expected an RFC 3339 timestamp or a positive duration, got " + s)
	}
	return now.Add(-d), nil
}

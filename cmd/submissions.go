package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-webhook/internal/model"
	"github.com/sells-group/lead-webhook/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect the submission ledger",
	Long:  "Commands for listing and summarizing webhook submissions recorded by the ledger store.",
}

// -- submissions list --

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent submissions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListSubmissions(ctx, store.SubmissionFilter{
			Outcome: model.Outcome(outcome),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "submissions list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No submissions found.")
			return nil
		}

		formatSubmissionsList(os.Stdout, entries)
		return nil
	},
}

// -- submissions stats --

var submissionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show submission counts by outcome",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByOutcome(ctx)
		if err != nil {
			return eris.Wrap(err, "submissions stats")
		}

		formatOutcomeCounts(os.Stdout, counts)
		return nil
	},
}

func openLedger(cmd *cobra.Command) (store.Store, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == "none" {
		return nil, eris.New("submissions: no ledger configured (set store.driver to sqlite or postgres)")
	}
	ctx := cmd.Context()
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func init() {
	submissionsListCmd.Flags().String("outcome", "", "filter by outcome (created, duplicate, duplicate_unresolved, failed, rate_limited, invalid)")
	submissionsListCmd.Flags().Int("limit", 50, "max number of submissions to display")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsStatsCmd)
	rootCmd.AddCommand(submissionsCmd)
}

// formatSubmissionsList writes a tabular list of submissions to w.
func formatSubmissionsList(out io.Writer, entries []model.SubmissionLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tCLIENT\tOUTCOME\tSERVICE\tCONTACT\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t-------\t-------\t-----")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(e.ID),
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.ClientIP,
			e.Outcome,
			e.ServiceType,
			e.ContactID,
			truncateText(e.Error, 40),
		)
	}
	_ = w.Flush()
}

// formatOutcomeCounts writes per-outcome totals to w.
func formatOutcomeCounts(out io.Writer, counts []store.OutcomeCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", c.Outcome, c.Count)
		total += c.Count
	}
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", total)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

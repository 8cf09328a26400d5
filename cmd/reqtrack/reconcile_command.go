package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/credentials"
	"reqtrack/internal/library"
	"reqtrack/internal/reconcile"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass now",
		Long: "Checks every pending and approved request against the Jellyfin library\n" +
			"and marks matches fulfilled, exactly like one tick of the daemon loop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *requests.Store) error {
				logger := ctx.logger(cfg)
				client := jellyfin.NewConfiguredClient(cfg)
				reconciler := reconcile.New(cfg, store, credentials.NewSelector(store), library.NewMatcher(cfg, client, logger), logger)

				summary, err := reconciler.RunPass(cmd.Context())
				if jsonOut {
					if encErr := writeJSON(cmd, summary); encErr != nil {
						return encErr
					}
					return err
				}
				printPassSummary(cmd, summary)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printPassSummary(cmd *cobra.Command, summary reconcile.PassSummary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Reconciliation pass "+summary.PassID, colorize) {
		fmt.Fprintln(out, line)
	}

	switch {
	case summary.Skipped == reconcile.SkipNoOpenRequests:
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, "no open requests", colorize))
		return
	case summary.Skipped == reconcile.SkipNoCredential:
		fmt.Fprintln(out, renderStatusLine("Result", statusWarn, "no admin with a library token; run `reqtrack users link --admin`", colorize))
		return
	case summary.Error != "":
		fmt.Fprintln(out, renderStatusLine("Result", statusError, summary.Error, colorize))
	case summary.Aborted:
		fmt.Fprintln(out, renderStatusLine("Result", statusError, "library rejected the admin credential; pass aborted", colorize))
	case summary.Errors > 0:
		fmt.Fprintln(out, renderStatusLine("Result", statusWarn, fmt.Sprintf("%d request(s) could not be checked", summary.Errors), colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, "completed", colorize))
	}

	rows := [][]string{
		{"Open", strconv.Itoa(summary.Open)},
		{"Checked", strconv.Itoa(summary.Checked)},
		{"Fulfilled", strconv.Itoa(summary.Fulfilled)},
		{"Not in library", strconv.Itoa(summary.NoMatch)},
		{"Errors", strconv.Itoa(summary.Errors)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, id := range summary.FulfilledIDs {
		fmt.Fprintf(out, "Fulfilled request #%d\n", id)
	}
}

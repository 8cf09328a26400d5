package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/credentials"
	"reqtrack/internal/preflight"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the database, Jellyfin, and admin credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *requests.Store) error {
				results := preflight.RunAll(cmd.Context(), cfg, preflight.Dependencies{
					Database: store,
					Library:  jellyfin.NewConfiguredClient(cfg),
					Selector: credentials.NewSelector(store),
				})
				healthy := preflight.AllPassed(results)
				if jsonOut {
					if err := writeJSON(cmd, map[string]any{"healthy": healthy, "checks": results}); err != nil {
						return err
					}
				} else {
					printHealth(cmd, results)
				}
				if !healthy {
					return fmt.Errorf("health check failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printHealth(cmd *cobra.Command, results []preflight.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Health", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
}

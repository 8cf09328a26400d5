package main

import (
	"github.com/spf13/cobra"

	"reqtrack/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and reconciliation loop in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in logs")
	cmd.Flags().BoolVar(&opts.LockFinal, "lock-final", false, "Refuse status changes out of denied and fulfilled")
	return cmd
}

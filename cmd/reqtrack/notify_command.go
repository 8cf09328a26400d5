package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reqtrack/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Manage push notifications",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return fmt.Errorf("notifications.ntfy_topic is not set")
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent test notification to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	})
	return cmd
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tipflow/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			notifier := notifications.NewService(cfg, logger)
			err = notifier.TestNotification(cmd.Context())
			switch {
			case errors.Is(err, notifications.ErrNotConfigured):
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent: no email or ntfy channel configured")
				return errReported
			case err != nil:
				return fmt.Errorf("test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}

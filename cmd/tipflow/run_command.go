package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tipflow/internal/content"
	"tipflow/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate one tip and request approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			comps, err := ctx.componentsWith(logger)
			if err != nil {
				return err
			}
			defer ctx.close()

			out := cmd.OutOrStdout()
			res, err := comps.Runner.RunOnce(cmd.Context())
			if errors.Is(err, content.ErrNotAvailable) {
				fmt.Fprintln(out, "No new tip available; nothing to do")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Generated: %s\n", res.Item.Headline)
			if res.Notified {
				fmt.Fprintln(out, "Approval request sent")
				return nil
			}
			fmt.Fprint(out, workflow.ManualInstructions(res))
			return nil
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tipflow/internal/approval"
	"tipflow/internal/daemonrun"
	"tipflow/internal/logging"
	"tipflow/internal/textutil"
)

// minTokenPrefix is the shortest token prefix accepted on the command line.
const minTokenPrefix = 8

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <token>",
		Short: "Approve a pending tip and publish it",
		Args:  cobra.ExactArgs(1),
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
			token, err := resolveToken(cmd.Context(), comps.Store, args[0])
			if errors.Is(err, approval.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Invalid or expired token: %s\n", logging.TokenPrefix(args[0]))
				printPendingTokens(cmd.Context(), out, comps)
				return errReported
			}
			if err != nil {
				return err
			}

			if err := comps.Publisher.Prepare(cmd.Context()); err != nil {
				return fmt.Errorf("prepare repository: %w", err)
			}

			outcome, err := comps.Approver.Approve(cmd.Context(), token)
			var decided *approval.AlreadyDecidedError
			switch {
			case errors.As(err, &decided):
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: tip already processed, currently %s\n", decided.Status)
				return errReported
			case err != nil:
				return fmt.Errorf("approve: %w", err)
			}

			fmt.Fprintf(out, "Approved and published: %s\n", outcome.Record.Item.Headline)
			if outcome.RemoteURL != "" {
				fmt.Fprintf(out, "View: %s\n", outcome.RemoteURL)
			}
			return nil
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <token>",
		Short: "Reject a pending tip and delete its file",
		Args:  cobra.ExactArgs(1),
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
			token, err := resolveToken(cmd.Context(), comps.Store, args[0])
			if errors.Is(err, approval.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Invalid or expired token: %s\n", logging.TokenPrefix(args[0]))
				printPendingTokens(cmd.Context(), out, comps)
				return errReported
			}
			if err != nil {
				return err
			}

			outcome, err := comps.Approver.Reject(cmd.Context(), token)
			var decided *approval.AlreadyDecidedError
			switch {
			case errors.As(err, &decided):
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: tip already processed, currently %s\n", decided.Status)
				return errReported
			case err != nil:
				return fmt.Errorf("reject: %w", err)
			}

			fmt.Fprintf(out, "Rejected: %s\n", outcome.Record.Item.Headline)
			if outcome.FileRemoved {
				fmt.Fprintf(out, "Deleted %s\n", outcome.Record.Item.Filename)
			}
			return nil
		},
	}
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var full bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List tips waiting for a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.quietLogger(cmd)
			if err != nil {
				return err
			}
			comps, err := ctx.componentsWith(logger)
			if err != nil {
				return err
			}
			defer ctx.close()

			records, err := comps.Approver.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, pendingView(records, full))
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No pending approvals")
				return nil
			}
			fmt.Fprintln(out, renderPendingTable(records, full))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Show full tokens")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type pendingJSON struct {
	Token     string `json:"token"`
	Headline  string `json:"headline"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
}

func pendingView(records []*approval.Record, full bool) []pendingJSON {
	out := make([]pendingJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, pendingJSON{
			Token:     displayToken(rec.Token, full),
			Headline:  rec.Item.Headline,
			Filename:  rec.Item.Filename,
			CreatedAt: rec.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return out
}

func renderPendingTable(records []*approval.Record, full bool) string {
	rows := make([][]string, 0, len(records))
	for i, v := range pendingView(records, full) {
		rows = append(rows, []string{strconv.Itoa(i + 1), v.Token, textutil.Truncate(v.Headline, 60), v.Filename, v.CreatedAt})
	}
	return renderTable([]string{"#", "Token", "Headline", "File", "Created"}, rows, 1)
}

func displayToken(token string, full bool) string {
	if full || len(token) <= minTokenPrefix {
		return token
	}
	return token[:minTokenPrefix] + "…"
}

func printPendingTokens(ctx context.Context, out io.Writer, comps *daemonrun.Components) {
	records, err := comps.Store.List(ctx, approval.StatusPending)
	if err != nil || len(records) == 0 {
		fmt.Fprintln(out, "No pending approvals")
		return
	}
	fmt.Fprintln(out, "Pending approvals:")
	for _, rec := range records {
		fmt.Fprintf(out, "  %s  %s\n", displayToken(rec.Token, false), rec.Item.Headline)
	}
}

// resolveToken accepts a full token or a unique prefix of at least
// minTokenPrefix characters.
func resolveToken(ctx context.Context, store approval.Store, arg string) (string, error) {
	token := strings.TrimSuffix(strings.TrimSpace(arg), "…")
	if token == "" {
		return "", approval.ErrNotFound
	}
	if _, err := store.Get(ctx, token); err == nil {
		return token, nil
	} else if !errors.Is(err, approval.ErrNotFound) {
		return "", err
	}
	if len(token) < minTokenPrefix {
		return "", approval.ErrNotFound
	}
	records, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, rec := range records {
		if !strings.HasPrefix(rec.Token, token) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("token prefix %q is ambiguous", token)
		}
		match = rec.Token
	}
	if match == "" {
		return "", approval.ErrNotFound
	}
	return match, nil
}

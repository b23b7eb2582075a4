package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tipflow/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tipflow log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			out := cmd.OutOrStdout()
			if !cfg.Logging.File {
				fmt.Fprintf(cmd.ErrOrStderr(), "Note: logging.file is disabled; %s may be stale\n", path)
			}

			chunk, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			printLogLines(out, chunk.Lines, filter, raw)
			if !follow {
				return nil
			}

			offset := chunk.Offset
			for {
				chunk, err := logs.Follow(cmd.Context(), path, offset, 30*time.Second)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				printLogLines(out, chunk.Lines, filter, raw)
				offset = chunk.Offset
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unchanged")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only show lines from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

func printLogLines(out io.Writer, lines []string, filter logs.Filter, raw bool) {
	for _, line := range lines {
		entry, decoded := logs.ParseEntry(line)
		if !filter.Match(entry, decoded) {
			continue
		}
		if raw {
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintln(out, entry.String())
	}
}

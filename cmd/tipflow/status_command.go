package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"tipflow/internal/config"
	"tipflow/internal/daemonrun"
	"tipflow/internal/preflight"
	"tipflow/internal/publish"
)

const recentHistory = 5

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show repository, approval and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.quietLogger(cmd)
			if err != nil {
				return err
			}
			comps, err := ctx.componentsWith(logger)
			if err != nil {
				return err
			}
			defer ctx.close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			runCtx := cmd.Context()

			var lines []string
			lines = append(lines, renderSectionHeader("tipflow", colorize)...)
			lines = append(lines, daemonStatusLine(cfg, colorize))
			lines = append(lines, renderStatusLine("Approval links", statusInfo, cfg.Server.PublicURL, colorize))
			lines = append(lines, scheduleStatusLine(cfg, colorize))
			lines = append(lines, generatorStatusLine(cfg, colorize))
			lines = append(lines, notifierStatusLine(cfg, colorize))
			lines = append(lines, renderStatusLine("Store", statusInfo, fmt.Sprintf("%s (%s)", cfg.StorePath(), cfg.Store.Backend), colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Repository", colorize)...)
			lines = append(lines, repositoryLines(runCtx, cfg, comps.Publisher, colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			lines = append(lines, preflightLines(preflight.RunAll(runCtx, cfg), colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Approvals", colorize)...)
			stats, err := comps.Approver.Stats(runCtx)
			if err != nil {
				lines = append(lines, renderStatusLine("Store", statusError, err.Error(), colorize))
			} else {
				lines = append(lines, approvalLines(stats, colorize)...)
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Recent tips", colorize)...)
			history, err := comps.Generator.History()
			switch {
			case err != nil:
				lines = append(lines, renderStatusLine("History", statusError, err.Error(), colorize))
			case len(history.Tips) == 0:
				lines = append(lines, renderStatusLine("History", statusInfo, "no tips generated yet", colorize))
			default:
				lines = append(lines, renderStatusLine("History", statusInfo, fmt.Sprintf("%d tips generated", len(history.Tips)), colorize))
				lines = append(lines, renderHistoryTable(history.Recent(recentHistory)))
			}

			writeLines(out, lines)
			return nil
		},
	}
}

// daemonStatusLine probes the daemon lock; a held lock means tipflowd runs.
func daemonStatusLine(cfg *config.Config, colorize bool) string {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return renderStatusLine("Daemon", statusWarn, fmt.Sprintf("unknown (%v)", err), colorize)
	}
	if locked {
		_ = lock.Unlock()
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
	msg := "Running"
	if pid := daemonrun.ReadPID(cfg); pid > 0 {
		msg = fmt.Sprintf("Running (pid %d, %s)", pid, cfg.ListenAddr())
	}
	return renderStatusLine("Daemon", statusOK, msg, colorize)
}

func scheduleStatusLine(cfg *config.Config, colorize bool) string {
	if !cfg.Schedule.Enabled {
		return renderStatusLine("Schedule", statusInfo, "Disabled", colorize)
	}
	return renderStatusLine("Schedule", statusOK, "Daily at "+cfg.Schedule.DailyRunTime, colorize)
}

func generatorStatusLine(cfg *config.Config, colorize bool) string {
	if cfg.Generator.UsesModel() {
		return renderStatusLine("Generator", statusOK, "Model "+cfg.Generator.Model, colorize)
	}
	return renderStatusLine("Generator", statusWarn, "Fallback pool (no API key)", colorize)
}

func notifierStatusLine(cfg *config.Config, colorize bool) string {
	var channels []string
	if cfg.Email.Configured() {
		channels = append(channels, "email "+cfg.Email.Recipient)
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		channels = append(channels, "ntfy")
	}
	if len(channels) == 0 {
		return renderStatusLine("Notifications", statusWarn, "None configured (manual approval)", colorize)
	}
	return renderStatusLine("Notifications", statusOK, strings.Join(channels, ", "), colorize)
}

func repositoryLines(ctx context.Context, cfg *config.Config, git *publish.Git, colorize bool) []string {
	lines := []string{
		renderStatusLine("Path", statusInfo, cfg.Paths.RepoDir, colorize),
	}
	if cfg.Repository.RemoteURL == "" {
		lines = append(lines, renderStatusLine("Remote", statusWarn, "Not configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Remote", statusInfo,
			fmt.Sprintf("%s %s (branch %s)", cfg.Repository.RemoteName, cfg.Repository.RemoteURL, git.Branch()), colorize))
	}

	status, err := git.Status(ctx)
	if err != nil {
		return append(lines, renderStatusLine("Git", statusWarn, "Not a git repository yet", colorize))
	}
	commit, err := git.LastCommit(ctx)
	switch {
	case err != nil:
		lines = append(lines, renderStatusLine("Last commit", statusWarn, err.Error(), colorize))
	case commit == "":
		lines = append(lines, renderStatusLine("Last commit", statusInfo, "No commits yet", colorize))
	default:
		lines = append(lines, renderStatusLine("Last commit", statusOK, commit, colorize))
	}
	for _, line := range strings.Split(status, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, statusIndent+statusIndent+line)
		}
	}
	return lines
}

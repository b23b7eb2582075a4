package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"tipflow/internal/config"
	"tipflow/internal/daemon"
	"tipflow/internal/logging"
	"tipflow/internal/preflight"
)

// PIDFileName is written to the state directory while the daemon runs.
const PIDFileName = "tipflowd.pid"

// RunOptions configures daemon process runtime behavior.
type RunOptions struct {
	// Build is forwarded to Build.
	Build []Option
	// Ready, when set, receives the started daemon's status.
	Ready func(daemon.Status)
}

// Run starts the tipflow daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, logger *slog.Logger, opts RunOptions) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logDependencySnapshot(logger, cfg)

	comps, err := Build(cfg, logger, opts.Build...)
	if err != nil {
		return err
	}
	defer comps.Close()

	if err := comps.Publisher.Prepare(signalCtx); err != nil {
		logging.WarnWithHint(logger, "repository preparation failed", "repo_prepare_failed",
			"check paths.repo_dir and repository.remote_url; approvals will fail until fixed",
			logging.Error(err))
	}
	for _, r := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", r.Name),
			logging.String("detail", r.Detail))
	}

	server := daemon.NewServer(comps.Approver, cfg.Generator.Topic, logger)
	var scheduler *daemon.Scheduler
	if cfg.Schedule.Enabled {
		at, err := cfg.Schedule.RunClock()
		if err != nil {
			return err
		}
		scheduler = daemon.NewScheduler(comps.Runner, at, logger)
	}

	d, err := daemon.New(cfg, server, scheduler, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	pidPath := filepath.Join(cfg.Paths.StateDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("write pid file failed", logging.Error(err))
	}
	defer os.Remove(pidPath)

	if opts.Ready != nil {
		opts.Ready(d.Status())
	}

	<-signalCtx.Done()
	logger.Info("tipflow daemon shutting down")
	return nil
}

// ReadPID returns the pid recorded by a running daemon, or 0.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, PIDFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("git_available", binaryAvailable("git")),
		logging.Bool("model_key_present", cfg.Generator.UsesModel()),
		logging.String("model", cfg.Generator.Model),
		logging.Bool("email_configured", cfg.Email.Configured()),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("store_backend", cfg.Store.Backend),
		logging.Bool("schedule_enabled", cfg.Schedule.Enabled),
		logging.String("daily_run_time", cfg.Schedule.DailyRunTime),
	)
}

func binaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

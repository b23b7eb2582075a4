package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tipflow/internal/config"
	"tipflow/internal/daemonrun"
	"tipflow/internal/logging"
)

// errReported marks errors whose details were already printed.
var errReported = errors.New("reported")

// componentOptions is appended to every Build call; tests use it to stub git
// and the clock.
var componentOptions []daemonrun.Option

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	components *daemonrun.Components
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// logger writes to the command's stderr and, when enabled, the log file.
func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	}
	if cfg.Logging.File {
		opts.FilePath = cfg.LogFilePath()
	}
	return logging.New(opts)
}

// quietLogger is used by read-only commands whose output is the report itself.
func (c *commandContext) quietLogger(cmd *cobra.Command) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: "warn", Format: cfg.Logging.Format, Output: cmd.ErrOrStderr()})
}

func (c *commandContext) componentsWith(logger *slog.Logger) (*daemonrun.Components, error) {
	if c.components != nil {
		return c.components, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	comps, err := daemonrun.Build(cfg, logger, componentOptions...)
	if err != nil {
		return nil, err
	}
	c.components = comps
	return comps, nil
}

func (c *commandContext) close() error {
	if c.components == nil {
		return nil
	}
	err := c.components.Close()
	c.components = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func writeLines(out io.Writer, lines []string) {
	for _, line := range lines {
		_, _ = io.WriteString(out, line+"\n")
	}
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

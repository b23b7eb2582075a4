package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRepository(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		return errors.New("paths.content_dir must be set")
	}
	if strings.TrimSpace(c.Paths.HistoryFile) == "" {
		return errors.New("paths.history_file must be set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	parsed, err := url.Parse(c.Server.PublicURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server.public_url must be an absolute URL, got %q", c.Server.PublicURL)
	}
	return nil
}

func (c *Config) validateRepository() error {
	if c.Repository.Branch == "" {
		return errors.New("repository.branch must be set")
	}
	if strings.ContainsAny(c.Repository.Branch, " ~^:?*[\\") {
		return fmt.Errorf("repository.branch %q is not a valid branch name", c.Repository.Branch)
	}
	if c.Repository.PushTimeoutSeconds <= 0 {
		return errors.New("repository.push_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendJSON, StoreBackendSQLite:
		return nil
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", StoreBackendJSON, StoreBackendSQLite, c.Store.Backend)
	}
}

func (c *Config) validateGenerator() error {
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return errors.New("generator.temperature must be between 0 and 2")
	}
	if c.Generator.MaxTokens <= 0 {
		return errors.New("generator.max_tokens must be positive")
	}
	if strings.ContainsAny(c.Generator.FilePrefix, `/\`) {
		return fmt.Errorf("generator.file_prefix %q must not contain path separators", c.Generator.FilePrefix)
	}
	return nil
}

func (c *Config) validateEmail() error {
	if c.Email.SMTPHost == "" {
		return nil
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		return fmt.Errorf("email.smtp_port must be between 1 and 65535, got %d", c.Email.SMTPPort)
	}
	if c.Email.Recipient == "" {
		return errors.New("email.recipient is required when email.smtp_host is set (or set RECIPIENT_EMAIL)")
	}
	if c.Email.From == "" {
		return errors.New("email.from is required when email.smtp_host is set (or set EMAIL_FROM)")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := c.Schedule.RunClock(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}

// RunClock parses DailyRunTime as a 24-hour HH:MM wall clock time and returns
// the offset from midnight.
func (s Schedule) RunClock() (time.Duration, error) {
	parsed, err := time.Parse("15:04", s.DailyRunTime)
	if err != nil {
		return 0, fmt.Errorf("schedule.daily_run_time must be HH:MM, got %q", s.DailyRunTime)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// Configured reports whether approval emails can be sent.
func (e Email) Configured() bool {
	return e.SMTPHost != "" && e.Recipient != ""
}

// UsesModel reports whether the generator should call the model endpoint
// instead of the fallback pool.
func (g Generator) UsesModel() bool {
	return g.APIKey != ""
}

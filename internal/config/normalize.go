package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeRepository()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeGenerator(); err != nil {
		return err
	}
	if err := c.normalizeEmail(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeSchedule()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RepoDir) == "" {
		c.Paths.RepoDir = defaultRepoDir
	}
	if c.Paths.RepoDir, err = expandPath(c.Paths.RepoDir); err != nil {
		return fmt.Errorf("paths.repo_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		c.Paths.ContentDir = defaultContentDir
	}
	if strings.HasPrefix(c.Paths.ContentDir, "~") {
		if c.Paths.ContentDir, err = expandPath(c.Paths.ContentDir); err != nil {
			return fmt.Errorf("paths.content_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.HistoryFile) == "" {
		c.Paths.HistoryFile = defaultHistoryFile
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = defaultServerHost
	}
	for _, key := range []string{"TIPFLOW_PORT", "PORT"} {
		value, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", key, value)
		}
		c.Server.Port = port
		break
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if value, ok := os.LookupEnv("TIPFLOW_DEBUG"); ok {
		c.Server.Debug = strings.EqualFold(strings.TrimSpace(value), "true") || strings.TrimSpace(value) == "1"
	}
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	return nil
}

func (c *Config) normalizeRepository() {
	if c.Repository.RemoteURL == "" {
		if value, ok := os.LookupEnv("GITHUB_REPO_URL"); ok {
			c.Repository.RemoteURL = value
		}
	}
	c.Repository.RemoteURL = strings.TrimSpace(c.Repository.RemoteURL)
	if value, ok := os.LookupEnv("GITHUB_BRANCH"); ok && strings.TrimSpace(value) != "" {
		c.Repository.Branch = value
	}
	c.Repository.Branch = strings.TrimSpace(c.Repository.Branch)
	if c.Repository.Branch == "" {
		c.Repository.Branch = defaultBranch
	}
	c.Repository.RemoteName = strings.TrimSpace(c.Repository.RemoteName)
	if c.Repository.RemoteName == "" {
		c.Repository.RemoteName = defaultRemoteName
	}
	if strings.TrimSpace(c.Repository.AuthorName) == "" {
		c.Repository.AuthorName = defaultAuthorName
	}
	if strings.TrimSpace(c.Repository.AuthorEmail) == "" {
		c.Repository.AuthorEmail = defaultAuthorEmail
	}
	if c.Repository.PushTimeoutSeconds <= 0 {
		c.Repository.PushTimeoutSeconds = defaultPushTimeoutSeconds
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.Path) != "" {
		var err error
		if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeGenerator() error {
	c.Generator.APIKey = strings.TrimSpace(c.Generator.APIKey)
	if c.Generator.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Generator.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generator.BaseURL = strings.TrimSpace(c.Generator.BaseURL)
	if c.Generator.BaseURL == "" {
		if value, ok := os.LookupEnv("OPENAI_BASE_URL"); ok {
			c.Generator.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Generator.Model = strings.TrimSpace(c.Generator.Model)
	if c.Generator.Model == "" {
		c.Generator.Model = defaultGeneratorModel
	}
	c.Generator.Topic = strings.TrimSpace(c.Generator.Topic)
	if c.Generator.Topic == "" {
		c.Generator.Topic = defaultGeneratorTopic
	}
	if c.Generator.FilePrefix == "" {
		c.Generator.FilePrefix = defaultFilePrefix
	}
	if c.Generator.MaxTokens <= 0 {
		c.Generator.MaxTokens = defaultMaxTokens
	}
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = defaultGeneratorTimeout
	}
	if strings.TrimSpace(c.Generator.PoolFile) != "" {
		var err error
		if c.Generator.PoolFile, err = expandPath(c.Generator.PoolFile); err != nil {
			return fmt.Errorf("generator.pool_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEmail() error {
	lookup := func(current *string, key string) {
		if strings.TrimSpace(*current) == "" {
			if value, ok := os.LookupEnv(key); ok {
				*current = value
			}
		}
		*current = strings.TrimSpace(*current)
	}
	lookup(&c.Email.SMTPHost, "SMTP_HOST")
	lookup(&c.Email.Username, "SMTP_USERNAME")
	lookup(&c.Email.From, "EMAIL_FROM")
	lookup(&c.Email.Recipient, "RECIPIENT_EMAIL")
	if c.Email.Password == "" {
		if value, ok := os.LookupEnv("SMTP_PASSWORD"); ok {
			c.Email.Password = value
		}
	}
	if value, ok := os.LookupEnv("SMTP_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("SMTP_PORT: invalid port %q", value)
		}
		c.Email.SMTPPort = port
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = defaultSMTPPort
	}
	if c.Email.From == "" {
		c.Email.From = c.Email.Username
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeSchedule() {
	if value, ok := os.LookupEnv("DAILY_RUN_TIME"); ok && strings.TrimSpace(value) != "" {
		c.Schedule.DailyRunTime = value
	}
	c.Schedule.DailyRunTime = strings.TrimSpace(c.Schedule.DailyRunTime)
	if c.Schedule.DailyRunTime == "" {
		c.Schedule.DailyRunTime = defaultDailyRunTime
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Server.Debug {
		c.Logging.Level = "debug"
	}
}

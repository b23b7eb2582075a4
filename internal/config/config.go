package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Store backends understood by the approval store factory.
const (
	StoreBackendJSON   = "json"
	StoreBackendSQLite = "sqlite"
)

// Paths contains working tree and state directory configuration.
type Paths struct {
	// RepoDir is the git working tree that receives published items.
	RepoDir string `toml:"repo_dir"`
	// ContentDir is relative to RepoDir unless absolute.
	ContentDir string `toml:"content_dir"`
	// HistoryFile is relative to RepoDir unless absolute.
	HistoryFile string `toml:"history_file"`
	StateDir    string `toml:"state_dir"`
}

// Server contains the approval HTTP surface settings.
type Server struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	PublicURL string `toml:"public_url"`
	Debug     bool   `toml:"debug"`
}

// Repository contains the publication target.
type Repository struct {
	RemoteURL          string `toml:"remote_url"`
	RemoteName         string `toml:"remote_name"`
	Branch             string `toml:"branch"`
	AuthorName         string `toml:"author_name"`
	AuthorEmail        string `toml:"author_email"`
	PushTimeoutSeconds int    `toml:"push_timeout_seconds"`
}

// Store selects the approval store backend.
type Store struct {
	Backend string `toml:"backend"`
	// Path overrides the default location inside StateDir.
	Path string `toml:"path"`
}

// Generator contains text-generation settings. An empty APIKey selects the
// fallback pool.
type Generator struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Topic          string  `toml:"topic"`
	FilePrefix     string  `toml:"file_prefix"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	PoolFile       string  `toml:"pool_file"`
}

// Email contains SMTP settings for approval messages.
type Email struct {
	SMTPHost  string `toml:"smtp_host"`
	SMTPPort  int    `toml:"smtp_port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	From      string `toml:"from"`
	Recipient string `toml:"recipient"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Schedule contains the daily run settings used by the daemon.
type Schedule struct {
	Enabled      bool   `toml:"enabled"`
	DailyRunTime string `toml:"daily_run_time"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File enables an additional log file under StateDir/logs.
	File bool `toml:"file"`
}

// Config encapsulates all configuration values for tipflow.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Repository    Repository    `toml:"repository"`
	Store         Store         `toml:"store"`
	Generator     Generator     `toml:"generator"`
	Email         Email         `toml:"email"`
	Notifications Notifications `toml:"notifications"`
	Schedule      Schedule      `toml:"schedule"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tipflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tipflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and content directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.ContentDirPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Logging.File {
		if err := os.MkdirAll(c.LogDir(), 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", c.LogDir(), err)
		}
	}
	return nil
}

// ContentDirPath returns the absolute content directory.
func (c *Config) ContentDirPath() string {
	return c.inRepo(c.Paths.ContentDir)
}

// ContentURLPath returns the content directory as it appears in the remote
// repository, using forward slashes.
func (c *Config) ContentURLPath() string {
	rel, err := filepath.Rel(c.Paths.RepoDir, c.ContentDirPath())
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(c.ContentDirPath())
	}
	return filepath.ToSlash(rel)
}

// HistoryFilePath returns the absolute history log location.
func (c *Config) HistoryFilePath() string {
	return c.inRepo(c.Paths.HistoryFile)
}

// StorePath returns the approval store location for the configured backend.
func (c *Config) StorePath() string {
	if strings.TrimSpace(c.Store.Path) != "" {
		return c.Store.Path
	}
	if c.Store.Backend == StoreBackendSQLite {
		return filepath.Join(c.Paths.StateDir, "approvals.db")
	}
	return filepath.Join(c.Paths.StateDir, "pending_approvals.json")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "tipflowd.lock")
}

// LogDir returns the directory used for file logging.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// LogFilePath returns the JSON log file written when logging.file is set.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir(), "tipflow.log")
}

// ListenAddr returns the host:port the approval server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) inRepo(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.RepoDir, p)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

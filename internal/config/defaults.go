package config

const (
	defaultRepoDir            = "."
	defaultContentDir         = "tips"
	defaultHistoryFile        = "tip_history.json"
	defaultStateDir           = "~/.local/share/tipflow"
	defaultServerHost         = "0.0.0.0"
	defaultServerPort         = 5000
	defaultRemoteName         = "origin"
	defaultBranch             = "master"
	defaultAuthorName         = "tipflow"
	defaultAuthorEmail        = "tipflow@localhost"
	defaultPushTimeoutSeconds = 120
	defaultStoreBackend       = StoreBackendJSON
	defaultGeneratorModel     = "gpt-3.5-turbo"
	defaultGeneratorTopic     = "Python"
	defaultFilePrefix         = "Python_tip_"
	defaultTemperature        = 0.8
	defaultMaxTokens          = 500
	defaultGeneratorTimeout   = 60
	defaultSMTPPort           = 587
	defaultNtfyTimeout        = 10
	defaultDailyRunTime       = "09:00"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RepoDir:     defaultRepoDir,
			ContentDir:  defaultContentDir,
			HistoryFile: defaultHistoryFile,
			StateDir:    defaultStateDir,
		},
		Server: Server{
			Host: defaultServerHost,
			Port: defaultServerPort,
		},
		Repository: Repository{
			RemoteName:         defaultRemoteName,
			Branch:             defaultBranch,
			AuthorName:         defaultAuthorName,
			AuthorEmail:        defaultAuthorEmail,
			PushTimeoutSeconds: defaultPushTimeoutSeconds,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Generator: Generator{
			Model:          defaultGeneratorModel,
			Topic:          defaultGeneratorTopic,
			FilePrefix:     defaultFilePrefix,
			Temperature:    defaultTemperature,
			MaxTokens:      defaultMaxTokens,
			TimeoutSeconds: defaultGeneratorTimeout,
		},
		Email: Email{
			SMTPPort: defaultSMTPPort,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Schedule: Schedule{
			Enabled:      true,
			DailyRunTime: defaultDailyRunTime,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

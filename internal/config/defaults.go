package config

const (
	defaultDataDir               = "~/.local/share/draftsmith/data"
	defaultLogDir                = "~/.local/share/draftsmith/logs"
	defaultSourcesFile           = "~/.config/draftsmith/sources.yaml"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds     = 60
	defaultWorkspaceVersion      = "2022-06-28"
	defaultWorkspaceTimeout      = 15
	defaultMaxItemsPerSource     = 25
	defaultDedupRetentionDays    = 30
	defaultSweepIntervalMinutes  = 60
	defaultQueuePollInterval     = 5
	defaultErrorRetryInterval    = 10
	defaultRetryDelaySeconds     = 60
	defaultBatchSize             = 10
	defaultLeaseSeconds          = 300
	defaultStaleAfterDays        = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			SourcesFile: defaultSourcesFile,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          "Draftsmith",
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workspace: Workspace{
			Version:        defaultWorkspaceVersion,
			TimeoutSeconds: defaultWorkspaceTimeout,
		},
		Discovery: Discovery{
			MaxItemsPerSource:    defaultMaxItemsPerSource,
			RetentionDays:        defaultDedupRetentionDays,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			RetryDelaySeconds:  defaultRetryDelaySeconds,
			BatchSize:          defaultBatchSize,
			LeaseSeconds:       defaultLeaseSeconds,
			StaleAfterDays:     defaultStaleAfterDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

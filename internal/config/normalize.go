package config

import "strings"

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.LogDir, &c.Paths.SourcesFile} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = trimmed
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.Workspace.BaseURL = strings.TrimSpace(c.Workspace.BaseURL)
	c.Workspace.Token = strings.TrimSpace(c.Workspace.Token)
	c.Workspace.DatabaseID = strings.TrimSpace(c.Workspace.DatabaseID)
	c.Newsletter.Endpoint = strings.TrimSpace(c.Newsletter.Endpoint)
	c.Crosspost.Endpoint = strings.TrimSpace(c.Crosspost.Endpoint)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Discovery.MaxItemsPerSource <= 0 {
		c.Discovery.MaxItemsPerSource = defaultMaxItemsPerSource
	}
	if c.Discovery.RetentionDays <= 0 {
		c.Discovery.RetentionDays = defaultDedupRetentionDays
	}
	if c.Discovery.SweepIntervalMinutes <= 0 {
		c.Discovery.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.RetryDelaySeconds <= 0 {
		c.Workflow.RetryDelaySeconds = defaultRetryDelaySeconds
	}
	if c.Workflow.BatchSize <= 0 {
		c.Workflow.BatchSize = defaultBatchSize
	}
	if c.Workflow.LeaseSeconds <= 0 {
		c.Workflow.LeaseSeconds = defaultLeaseSeconds
	}
	if c.Workflow.StaleAfterDays <= 0 {
		c.Workflow.StaleAfterDays = defaultStaleAfterDays
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values that would prevent operation.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if c.Newsletter.Enabled && c.Newsletter.Endpoint == "" {
		problems = append(problems, "newsletter.endpoint must be set when newsletter.enabled is true")
	}
	if c.Crosspost.Enabled && c.Crosspost.Endpoint == "" {
		problems = append(problems, "crosspost.endpoint must be set when crosspost.enabled is true")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

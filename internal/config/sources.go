package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds understood by the discovery engine.
const (
	KindVideo    = "video"
	KindFeed     = "feed"
	KindReleases = "releases"
	KindStories  = "stories"
)

var knownKinds = map[string]struct{}{
	KindVideo:    {},
	KindFeed:     {},
	KindReleases: {},
	KindStories:  {},
}

// SourceConfig describes one monitored discovery source. It is read-only to
// the pipeline; the sources file is maintained by hand.
type SourceConfig struct {
	ID       string   `yaml:"id"`
	Kind     string   `yaml:"kind"`
	URL      string   `yaml:"url"`
	MinScore int      `yaml:"min_score"`
	Category string   `yaml:"category"`
	Section  string   `yaml:"section"`
	Tags     []string `yaml:"tags"`
	Featured bool     `yaml:"featured"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads and validates the YAML source list.
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(parsed.Sources))
	for i := range parsed.Sources {
		src := &parsed.Sources[i]
		src.ID = strings.TrimSpace(src.ID)
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		src.URL = strings.TrimSpace(src.URL)

		if src.ID == "" {
			return nil, fmt.Errorf("sources[%d]: id must be set", i)
		}
		if _, dup := seen[src.ID]; dup {
			return nil, fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = struct{}{}
		if _, ok := knownKinds[src.Kind]; !ok {
			return nil, fmt.Errorf("sources[%d]: unknown kind %q", i, src.Kind)
		}
		if src.URL == "" {
			return nil, fmt.Errorf("sources[%d]: url must be set", i)
		}
		if src.MinScore < 0 || src.MinScore > 100 {
			return nil, fmt.Errorf("sources[%d]: min_score must be within [0,100], got %d", i, src.MinScore)
		}
	}
	return parsed.Sources, nil
}

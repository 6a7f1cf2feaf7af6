package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FeedEntry is one feed in the feeds.toml roster.
type FeedEntry struct {
	ID       string   `toml:"id"`
	Name     string   `toml:"name"`
	URL      string   `toml:"url"`
	Category string   `toml:"category"`
	Priority string   `toml:"priority"`
	Enabled  bool     `toml:"enabled"`
	Tags     []string `toml:"tags"`
}

// FetchSettings are the roster-wide fetch knobs from feeds.toml.
type FetchSettings struct {
	RefreshIntervalMinutes int `toml:"refresh_interval_minutes"`
	TimeoutSeconds         int `toml:"timeout_seconds"`
	RetryAttempts          int `toml:"retry_attempts"`
	RetryDelayMs           int `toml:"retry_delay_ms"`
}

// FeedsDocument is the parsed feeds.toml: the feed roster plus global
// fetch settings.
type FeedsDocument struct {
	Settings FetchSettings `toml:"settings"`
	Feeds    []FeedEntry   `toml:"feeds"`
}

// DefaultFetchSettings returns the fetch knobs used when feeds.toml omits
// the settings table.
func DefaultFetchSettings() FetchSettings {
	return FetchSettings{
		RefreshIntervalMinutes: 5,
		TimeoutSeconds:         30,
		RetryAttempts:          3,
		RetryDelayMs:           1000,
	}
}

// LoadFeeds parses a feeds.toml roster. Entries without a URL are rejected;
// zero-valued settings fall back to defaults.
func LoadFeeds(path string) (*FeedsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	doc := &FeedsDocument{Settings: DefaultFetchSettings()}
	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}

	for i, f := range doc.Feeds {
		if f.URL == "" {
			return nil, fmt.Errorf("feed entry %d (%q) has no url", i, f.Name)
		}
	}

	defaults := DefaultFetchSettings()
	if doc.Settings.RefreshIntervalMinutes <= 0 {
		doc.Settings.RefreshIntervalMinutes = defaults.RefreshIntervalMinutes
	}
	if doc.Settings.TimeoutSeconds <= 0 {
		doc.Settings.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if doc.Settings.RetryAttempts <= 0 {
		doc.Settings.RetryAttempts = defaults.RetryAttempts
	}
	if doc.Settings.RetryDelayMs <= 0 {
		doc.Settings.RetryDelayMs = defaults.RetryDelayMs
	}

	return doc, nil
}

package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pagecomb/pagecomb/app/database"
)

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		feedName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(feedName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Feed definition loaded", "feed", feedName, "enabled", config.Enabled,
			"mode", config.Mode, "interval_minutes", IntervalMinutes(config.UpdateInterval.Unit, config.UpdateInterval.Value))
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	configFile := cc.getConfigFilePath(feedName)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.Name = feedName

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.Name] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return feedConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// ToFeed maps a definition onto the database feed record used for
// registration at startup.
func (c *Config) ToFeed() database.Feed {
	return database.Feed{
		Name:      c.Name,
		SourceURL: c.URL,
		Title:     c.Title,
		Mode:      c.Mode,
		Selectors: database.SelectorSet{
			ListContainer: c.Selectors.ListContainer,
			Item:          c.Selectors.Item,
			Title:         c.Selectors.Title,
			Link:          c.Selectors.Link,
			Published:     c.Selectors.Published,
			Summary:       c.Selectors.Summary,
		},
		IntervalUnit:  c.UpdateInterval.Unit,
		IntervalValue: c.UpdateInterval.Value,
		TtlMinutes:    c.TtlMinutes,
		Enabled:       c.Enabled,
	}
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	feedConfig := Config{Enabled: true}
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if feedConfig.Mode == "" {
		feedConfig.Mode = database.ModeHTML
	}
	if feedConfig.UpdateInterval.Unit == "" {
		feedConfig.UpdateInterval.Unit = "hour"
	}
	if feedConfig.UpdateInterval.Value == 0 {
		feedConfig.UpdateInterval.Value = 1
	}
	if feedConfig.TtlMinutes == 0 {
		feedConfig.TtlMinutes = 60
	}

	return &feedConfig, nil
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if feedConfig.Name == "" {
		return fmt.Errorf("feed name is required")
	}
	if feedConfig.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	switch feedConfig.Mode {
	case database.ModeHTML, database.ModeFeed, database.ModeAuto:
	default:
		return fmt.Errorf("invalid mode: %s", feedConfig.Mode)
	}

	switch feedConfig.UpdateInterval.Unit {
	case "hour", "day", "week":
	default:
		return fmt.Errorf("invalid update interval unit: %s", feedConfig.UpdateInterval.Unit)
	}
	if feedConfig.UpdateInterval.Value < 1 {
		return fmt.Errorf("update interval value must be positive")
	}
	if feedConfig.TtlMinutes < 0 {
		return fmt.Errorf("ttl_minutes must be non-negative")
	}

	if feedConfig.Mode != database.ModeFeed {
		requiredSelectors := map[string]string{
			"list_container": feedConfig.Selectors.ListContainer,
			"item":           feedConfig.Selectors.Item,
			"title":          feedConfig.Selectors.Title,
			"link":           feedConfig.Selectors.Link,
		}
		for name, value := range requiredSelectors {
			if value == "" {
				return fmt.Errorf("selector %s is required for mode %s", name, feedConfig.Mode)
			}
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(feedName string) string {
	return filepath.Join(cc.feedsDir, feedName+".yml")
}

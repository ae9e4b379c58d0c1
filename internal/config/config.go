package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/feedpress/internal/feed"
	"github.com/pders01/feedpress/internal/validation"
)

// MinPollInterval is the floor for per-feed poll intervals. Anything faster
// would hammer remote servers for content that barely changes.
const MinPollInterval = time.Hour

type Config struct {
	PollInterval time.Duration         `mapstructure:"poll_interval"`
	Database     DatabaseConfig        `mapstructure:"database"`
	HTTP         HTTPConfig            `mapstructure:"http"`
	Search       SearchConfig          `mapstructure:"search"`
	Log          LogConfig             `mapstructure:"log"`
	Feeds        map[string]FeedConfig `mapstructure:"feeds"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type SearchConfig struct {
	Index string `mapstructure:"index"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type FeedConfig struct {
	URL          string        `mapstructure:"url"`
	DownloadDir  string        `mapstructure:"download_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Conditional  string        `mapstructure:"conditional"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		PollInterval: 15 * time.Minute,
		Database: DatabaseConfig{
			Path: filepath.Join(homeDir, ".feedpress", "feedpress.db"),
		},
		HTTP: HTTPConfig{
			Timeout: 15 * time.Second,
		},
		Search: SearchConfig{
			Index: filepath.Join(homeDir, ".feedpress", "index.bleve"),
		},
		Log: LogConfig{
			Level: "info",
		},
		Feeds: map[string]FeedConfig{},
	}
}

// Load reads the TOML config file, applies defaults and env overrides, and
// validates every configured feed. When permissive is set, feed URLs on
// loopback or private addresses are accepted; that exists for tests and
// local development.
func Load(configPath string, permissive bool) (*Config, error) {
	v := viper.New()

	defaults := defaultConfig()
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("database", defaults.Database)
	v.SetDefault("http", defaults.HTTP)
	v.SetDefault("search", defaults.Search)
	v.SetDefault("log", defaults.Log)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(homeDir, ".config", "feedpress"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FEEDPRESS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Search.Index = expandPath(cfg.Search.Index)
	cfg.Log.Path = expandPath(cfg.Log.Path)

	if err := validate(&cfg, permissive); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config, permissive bool) error {
	urlValidator := validation.NewFeedURLValidator()
	if permissive {
		urlValidator = validation.NewPermissiveFeedURLValidator()
	}

	var tooFast []string
	for name := range cfg.Feeds {
		fc := cfg.Feeds[name]

		if fc.URL == "" {
			return fmt.Errorf("feed %s: url is required", name)
		}
		normalized, err := urlValidator.ValidateAndNormalize(fc.URL)
		if err != nil {
			return fmt.Errorf("feed %s: %w", name, err)
		}
		fc.URL = normalized

		if fc.DownloadDir == "" {
			return fmt.Errorf("feed %s: download_dir is required", name)
		}
		fc.DownloadDir = expandPath(fc.DownloadDir)

		if fc.PollInterval == 0 {
			fc.PollInterval = 4 * time.Hour
		}
		if fc.PollInterval < MinPollInterval {
			tooFast = append(tooFast, name)
		}

		if _, err := feed.ParseConditional(fc.Conditional); err != nil {
			return fmt.Errorf("feed %s: %w", name, err)
		}

		cfg.Feeds[name] = fc
	}

	if len(tooFast) > 0 {
		sort.Strings(tooFast)
		return fmt.Errorf("poll interval below %s for feeds: %s", MinPollInterval, strings.Join(tooFast, ", "))
	}

	return nil
}

// Sources converts the configured feeds into poll sources, sorted by name
// so poll order is stable across cycles.
func (c *Config) Sources() []feed.Source {
	sources := make([]feed.Source, 0, len(c.Feeds))
	for name, fc := range c.Feeds {
		kind, _ := feed.ParseConditional(fc.Conditional)
		sources = append(sources, feed.Source{
			Name:        name,
			URL:         fc.URL,
			DownloadDir: fc.DownloadDir,
			Interval:    fc.PollInterval,
			Conditional: kind,
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

// expandPath expands a leading ~ and makes the path absolute.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// Save writes a config to disk as TOML, with durations rendered as strings.
func Save(cfg *Config, path string) error {
	v := viper.New()

	v.Set("poll_interval", cfg.PollInterval.String())
	v.Set("database", map[string]any{"path": cfg.Database.Path})
	v.Set("http", map[string]any{
		"timeout":    cfg.HTTP.Timeout.String(),
		"user_agent": cfg.HTTP.UserAgent,
	})
	v.Set("search", map[string]any{"index": cfg.Search.Index})
	v.Set("log", map[string]any{"level": cfg.Log.Level, "path": cfg.Log.Path})

	feeds := make(map[string]any, len(cfg.Feeds))
	for name, fc := range cfg.Feeds {
		feeds[name] = map[string]any{
			"url":           fc.URL,
			"download_dir":  fc.DownloadDir,
			"poll_interval": fc.PollInterval.String(),
			"conditional":   fc.Conditional,
		}
	}
	if len(feeds) > 0 {
		v.Set("feeds", feeds)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

// GenerateDefaultConfig writes the default configuration to path.
func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// Package config loads and persists repository configuration. The config file
// lives at <repo>/config as YAML; values can be overridden through the
// environment with a CTX_ prefix (CTX_STORAGE_COMPRESSION_LEVEL=9), and a
// .env file next to the repository is honored when present.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ctxgraph/ctx/internal/ctxerr"
)

// FileName is the config file name under the repository directory.
const FileName = "config"

// Config is the full repository configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Gc      GcConfig      `yaml:"gc" mapstructure:"gc"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
}

// StorageConfig controls the object store.
type StorageConfig struct {
	// CompressionLevel is the zstd level (1-22). Higher is smaller and slower.
	CompressionLevel int `yaml:"compression_level" mapstructure:"compression_level"`
}

// GcConfig controls garbage collection.
type GcConfig struct {
	// GracePeriodDays is how long unreferenced objects survive before sweep.
	GracePeriodDays int `yaml:"grace_period_days" mapstructure:"grace_period_days"`
	// AutoGc runs a collection after every session compaction.
	AutoGc bool `yaml:"auto_gc" mapstructure:"auto_gc"`
}

// SearchConfig controls path/name search.
type SearchConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	MaxResults    int  `yaml:"max_results" mapstructure:"max_results"`
	SnippetLength int  `yaml:"snippet_length" mapstructure:"snippet_length"`
}

// SessionConfig controls session staleness handling.
type SessionConfig struct {
	// AskThresholdSecs is the idle time after which the user is asked before
	// a new task starts.
	AskThresholdSecs int64 `yaml:"ask_threshold_secs" mapstructure:"ask_threshold_secs"`
	// AutoCompactThresholdSecs is the idle time after which the session is
	// compacted without asking.
	AutoCompactThresholdSecs int64 `yaml:"auto_compact_threshold_secs" mapstructure:"auto_compact_threshold_secs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{CompressionLevel: 3},
		Gc:      GcConfig{GracePeriodDays: 7, AutoGc: false},
		Search:  SearchConfig{Enabled: true, MaxResults: 20, SnippetLength: 150},
		Session: SessionConfig{
			AskThresholdSecs:         24 * 60 * 60,
			AutoCompactThresholdSecs: 7 * 24 * 60 * 60,
		},
	}
}

// Load reads the config file under the repository directory, applying
// defaults for anything unset and environment overrides on top. A missing
// config file yields the defaults.
func Load(repoDir string) (Config, error) {
	// Best effort; most setups have no .env.
	_ = godotenv.Load(filepath.Join(repoDir, "..", ".env"))

	v := viper.New()
	v.SetConfigFile(filepath.Join(repoDir, FileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("storage.compression_level", def.Storage.CompressionLevel)
	v.SetDefault("gc.grace_period_days", def.Gc.GracePeriodDays)
	v.SetDefault("gc.auto_gc", def.Gc.AutoGc)
	v.SetDefault("search.enabled", def.Search.Enabled)
	v.SetDefault("search.max_results", def.Search.MaxResults)
	v.SetDefault("search.snippet_length", def.Search.SnippetLength)
	v.SetDefault("session.ask_threshold_secs", def.Session.AskThresholdSecs)
	v.SetDefault("session.auto_compact_threshold_secs", def.Session.AutoCompactThresholdSecs)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, ctxerr.Wrap(err, ctxerr.KindConfig, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ctxerr.Wrap(err, ctxerr.KindConfig, "parse config")
	}
	return cfg, nil
}

// Save writes the configuration as YAML to <repoDir>/config.
func (c Config) Save(repoDir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ctxerr.Wrap(err, ctxerr.KindConfig, "serialize config")
	}
	path := filepath.Join(repoDir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ctxerr.Wrap(err, ctxerr.KindConfig, "write config")
	}
	return nil
}

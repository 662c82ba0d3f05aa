// Package config provides configuration management for the momentum assistant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Strategy      StrategyConfig      `mapstructure:"strategy"`
	Data          DataConfig          `mapstructure:"data"`
	Research      ResearchConfig      `mapstructure:"research"`
	Store         StoreConfig         `mapstructure:"store"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Universe      []models.Instrument `mapstructure:"universe"`
	Credentials   Credentials         `mapstructure:"-"` // Loaded separately
}

// StrategyConfig holds the momentum window configuration.
type StrategyConfig struct {
	LookbackMonths int `mapstructure:"lookback_months"`
	SkipMonths     int `mapstructure:"skip_months"`
}

// DataConfig holds market data provider configuration.
type DataConfig struct {
	// Providers is the ordered fallback list, primary first.
	Providers []string `mapstructure:"providers"`
	// ToleranceDays is how many trading days the series may fall short
	// of the requested window and still count as complete.
	ToleranceDays int `mapstructure:"tolerance_days"`
	// MaxGapDays is the largest calendar gap allowed inside a series.
	MaxGapDays     int           `mapstructure:"max_gap_days"`
	FetchWorkers   int           `mapstructure:"fetch_workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ResearchConfig holds research stage configuration.
type ResearchConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxSubjects int  `mapstructure:"max_subjects"`
	// Sources is the ordered search source list, primary first.
	Sources    []string      `mapstructure:"sources"`
	MaxResults int           `mapstructure:"max_results"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	Workers    int           `mapstructure:"workers"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, signals_only, errors_only
	Pushover PushoverConfig `mapstructure:"pushover"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Terminal TerminalConfig `mapstructure:"terminal"`
}

// PushoverConfig holds Pushover notification configuration.
type PushoverConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIToken string `mapstructure:"api_token"`
	UserKey  string `mapstructure:"user_key"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TerminalConfig holds terminal notification configuration.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
	Serper SerperCredentials `mapstructure:"serper"`
	Brave  BraveCredentials  `mapstructure:"brave"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// SerperCredentials holds Serper search API credentials.
type SerperCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// BraveCredentials holds Brave search API credentials.
type BraveCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/gem-assistant"
	}
	return filepath.Join(home, ".config", "gem-assistant")
}

// Default returns the built-in configuration, used when no config file
// exists and as the base for file overrides.
func Default() *Config {
	return &Config{
		Strategy: StrategyConfig{
			LookbackMonths: 12,
			SkipMonths:     1,
		},
		Data: DataConfig{
			Providers:      []string{"stooq", "yahoo"},
			ToleranceDays:  5,
			MaxGapDays:     90,
			FetchWorkers:   4,
			RequestTimeout: 30 * time.Second,
		},
		Research: ResearchConfig{
			Enabled:     true,
			MaxSubjects: 3,
			Sources:     []string{"serper", "brave"},
			MaxResults:  6,
			CacheTTL:    24 * time.Hour,
			Workers:     3,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "gem.db"),
		},
		Notifications: NotificationConfig{
			Enabled:  true,
			Level:    "all",
			Terminal: TerminalConfig{Enabled: true},
		},
		Universe: models.DefaultUniverse(),
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(configDir, "gem.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("openai.model", "gpt-4o-mini")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("SERPER_API_KEY"); v != "" {
		cfg.Credentials.Serper.APIKey = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Credentials.Brave.APIKey = v
	}
	if v := os.Getenv("PUSHOVER_API_TOKEN"); v != "" {
		cfg.Notifications.Pushover.APIToken = v
	}
	if v := os.Getenv("PUSHOVER_USER_KEY"); v != "" {
		cfg.Notifications.Pushover.UserKey = v
	}
	if v := os.Getenv("GEM_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Strategy.LookbackMonths < 1 {
		return errors.Wrapf(errors.ErrConfigInvalid, "lookback_months must be >= 1, got %d", c.Strategy.LookbackMonths)
	}
	if c.Strategy.SkipMonths < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "skip_months must be >= 0, got %d", c.Strategy.SkipMonths)
	}
	if len(c.Data.Providers) == 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "at least one data provider must be configured")
	}
	if c.Data.FetchWorkers < 1 {
		return errors.Wrapf(errors.ErrConfigInvalid, "fetch_workers must be >= 1, got %d", c.Data.FetchWorkers)
	}
	if len(c.Universe) == 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "instrument universe is empty")
	}
	seen := make(map[string]bool, len(c.Universe))
	for _, inst := range c.Universe {
		if inst.ID == "" {
			return errors.Wrap(errors.ErrConfigInvalid, "instrument with empty id")
		}
		if seen[inst.ID] {
			return errors.Wrapf(errors.ErrConfigInvalid, "duplicate instrument id: %s", inst.ID)
		}
		seen[inst.ID] = true
		switch inst.AssetClass {
		case models.AssetEquity, models.AssetBond, models.AssetCash:
		default:
			return errors.Wrapf(errors.ErrConfigInvalid, "instrument %s has invalid asset class %q", inst.ID, inst.AssetClass)
		}
	}
	if c.Research.MaxSubjects < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "max_subjects must be >= 0, got %d", c.Research.MaxSubjects)
	}
	if c.Research.CacheTTL <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "cache_ttl must be positive")
	}
	switch c.Notifications.Level {
	case "", "all", "signals_only", "errors_only":
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "invalid notification level: %s", c.Notifications.Level)
	}
	return nil
}

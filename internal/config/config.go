package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML config at path and applies defaults, validation and
// credential environment overrides (TRADESYNC_<EXCHANGE>_API_KEY / _API_SECRET).
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if c.Sync.SinceDays <= 0 {
		c.Sync.SinceDays = 180
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = "data/journal.db"
	}
}

// applyEnvOverrides lets credentials stay out of the config file entirely.
func (c *Config) applyEnvOverrides() {
	for name, ex := range c.Exchanges {
		envBase := "TRADESYNC_" + strings.ToUpper(name)
		if key := os.Getenv(envBase + "_API_KEY"); key != "" {
			ex.APIKey = key
		}
		if secret := os.Getenv(envBase + "_API_SECRET"); secret != "" {
			ex.APISecret = secret
		}
		c.Exchanges[name] = ex
	}
}

func validate(c *Config) error {
	switch strings.ToLower(strings.TrimSpace(c.App.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid app.log_level %q", c.App.LogLevel)
	}
	if c.Sync.Workers < 0 || c.Sync.MaxRetries < 0 || c.Sync.MaxPages < 0 {
		return fmt.Errorf("sync settings must not be negative")
	}
	for name, ex := range c.Exchanges {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("exchange name cannot be empty")
		}
		if ex.MaxWindowHours < 0 || ex.PageSize < 0 || ex.RecvWindowMS < 0 {
			return fmt.Errorf("exchange %s: settings must not be negative", name)
		}
	}
	return nil
}

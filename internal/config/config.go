// Package config loads pagehelper settings from defaults, an optional
// pagehelper.yaml and PAGEHELPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. PAGEHELPER_LOGGER_LEVEL.
const EnvPrefix = "PAGEHELPER"

// Config is the full application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	Color       bool   `mapstructure:"color" yaml:"color"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chromium instance driven by the CLI.
type BrowserConfig struct {
	Headless   bool   `mapstructure:"headless" yaml:"headless"`
	Width      int    `mapstructure:"width" yaml:"width"`
	Height     int    `mapstructure:"height" yaml:"height"`
	ProfileDir string `mapstructure:"profile_dir" yaml:"profile_dir"`
	Bin        string `mapstructure:"bin" yaml:"bin"`
	// NavigationTimeout bounds page load; SettleTimeout bounds the wait for
	// network quiet afterwards.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
}

// ExecutorConfig holds operation timings.
type ExecutorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	DefaultWait    time.Duration `mapstructure:"default_wait" yaml:"default_wait"`
}

// AIConfig selects the model used by the plan command.
type AIConfig struct {
	Provider     string `mapstructure:"provider" yaml:"provider"`
	Model        string `mapstructure:"model" yaml:"model"`
	MaxTokens    int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	AnthropicKey string `mapstructure:"anthropic_key" yaml:"-"`
	OpenAIKey    string `mapstructure:"openai_key" yaml:"-"`
	GeminiKey    string `mapstructure:"gemini_key" yaml:"-"`
}

// ReportConfig controls result files written by the run command.
type ReportConfig struct {
	Dir            string   `mapstructure:"dir" yaml:"dir"`
	Formats        []string `mapstructure:"formats" yaml:"formats"`
	Screenshots    bool     `mapstructure:"screenshots" yaml:"screenshots"`
	ThumbnailWidth int      `mapstructure:"thumbnail_width" yaml:"thumbnail_width"`
}

// SetDefaults initializes default values for every key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.color", true)
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagehelper")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.settle_timeout", "5s")

	// -- Executor --
	v.SetDefault("executor.poll_interval", "100ms")
	v.SetDefault("executor.default_timeout", "5s")
	v.SetDefault("executor.default_wait", "1s")

	// -- AI --
	v.SetDefault("ai.provider", "claude")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.max_tokens", 2048)

	// -- Report --
	v.SetDefault("report.dir", "test-results")
	v.SetDefault("report.formats", []string{"json", "markdown", "html"})
	v.SetDefault("report.screenshots", true)
	v.SetDefault("report.thumbnail_width", 480)
}

// NewDefaultConfig returns the configuration with nothing but defaults applied.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewViper returns a viper instance with defaults, environment binding and,
// when file is set, that config file. Without file, pagehelper.yaml is looked
// up in the working directory.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("pagehelper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

// Load reads the configuration. A missing default config file is not an
// error; a missing explicit one is.
func Load(file string) (*Config, error) {
	v := NewViper(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Provider keys also come from the variables the SDKs use.
	_ = v.BindEnv("ai.anthropic_key", EnvPrefix+"_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("ai.openai_key", EnvPrefix+"_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("ai.gemini_key", EnvPrefix+"_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level %q is not a valid level", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive integers")
	}
	if c.Executor.PollInterval <= 0 {
		return fmt.Errorf("executor.poll_interval must be positive")
	}
	if c.Executor.DefaultTimeout <= 0 {
		return fmt.Errorf("executor.default_timeout must be positive")
	}
	if c.Executor.DefaultWait < 0 {
		return fmt.Errorf("executor.default_wait must not be negative")
	}
	switch c.AI.Provider {
	case "claude", "anthropic", "openai", "gpt", "gemini", "google":
	default:
		return fmt.Errorf("ai.provider %q is not supported (supported: claude, openai, gemini)", c.AI.Provider)
	}
	for _, f := range c.Report.Formats {
		switch f {
		case "json", "markdown", "html":
		default:
			return fmt.Errorf("report.formats: unknown format %q", f)
		}
	}
	if c.Report.ThumbnailWidth < 0 {
		return fmt.Errorf("report.thumbnail_width must not be negative")
	}
	return nil
}

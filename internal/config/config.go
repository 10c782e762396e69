// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Device DeviceConfig `mapstructure:"device" yaml:"device"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMProvider defines the supported model backend providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai" // any OpenAI-compatible chat completions endpoint
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for a single model backend.
type LLMModelConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model         string        `mapstructure:"model" yaml:"model"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// LLMRouterConfig maps model tiers onto named backend configurations.
type LLMRouterConfig struct {
	FastModel     string                    `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string                    `mapstructure:"powerful_model" yaml:"powerful_model"`
	VisionModel   string                    `mapstructure:"vision_model" yaml:"vision_model"`
	Models        map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// AnomalyConfig holds the detection thresholds. These are policy, not
// architecture, and are deliberately tunable.
type AnomalyConfig struct {
	SameScreenThreshold     int `mapstructure:"same_screen_threshold" yaml:"same_screen_threshold"`
	FailureStreakThreshold  int `mapstructure:"failure_streak_threshold" yaml:"failure_streak_threshold"`
	RepeatedActionThreshold int `mapstructure:"repeated_action_threshold" yaml:"repeated_action_threshold"`
}

// AgentConfig holds settings for the dual-agent orchestrator.
type AgentConfig struct {
	LLM             LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Anomaly         AnomalyConfig   `mapstructure:"anomaly" yaml:"anomaly"`
	MaxSteps        int             `mapstructure:"max_steps" yaml:"max_steps"`
	MaxReplans      int             `mapstructure:"max_replans" yaml:"max_replans"`
	HistoryLookback int             `mapstructure:"history_lookback" yaml:"history_lookback"`
	EventBuffer     int             `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// DeviceConfig tunes the ADB transport.
type DeviceConfig struct {
	ADBPath        string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serial         string        `mapstructure:"serial" yaml:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	SettleWait     time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.llm.fast_model", "default")
	v.SetDefault("agent.llm.powerful_model", "default")
	v.SetDefault("agent.llm.vision_model", "default")
	v.SetDefault("agent.llm.models.default.provider", "openai")
	v.SetDefault("agent.llm.models.default.model", "autoglm-phone")
	v.SetDefault("agent.llm.models.default.api_timeout", "60s")
	v.SetDefault("agent.llm.models.default.temperature", 0.2)
	v.SetDefault("agent.llm.models.default.max_tokens", 2048)
	v.SetDefault("agent.llm.models.default.rate_per_second", 2.0)
	v.SetDefault("agent.anomaly.same_screen_threshold", 3)
	v.SetDefault("agent.anomaly.failure_streak_threshold", 2)
	v.SetDefault("agent.anomaly.repeated_action_threshold", 3)
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.max_replans", 3)
	v.SetDefault("agent.history_lookback", 8)
	v.SetDefault("agent.event_buffer", 64)

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.command_timeout", "20s")
	v.SetDefault("device.settle_wait", "800ms")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8720")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxReplans < 0 {
		return fmt.Errorf("agent.max_replans must not be negative")
	}
	if c.Agent.EventBuffer <= 0 {
		return fmt.Errorf("agent.event_buffer must be a positive integer")
	}
	if err := c.Agent.Anomaly.Validate(); err != nil {
		return fmt.Errorf("agent.anomaly configuration invalid: %w", err)
	}
	for _, name := range []string{c.Agent.LLM.FastModel, c.Agent.LLM.PowerfulModel, c.Agent.LLM.VisionModel} {
		if _, ok := c.Agent.LLM.Models[name]; !ok {
			return fmt.Errorf("agent.llm references model %q which is not configured", name)
		}
	}
	return nil
}

// Validate checks the anomaly detection thresholds.
func (a *AnomalyConfig) Validate() error {
	if a.SameScreenThreshold < 2 {
		return fmt.Errorf("same_screen_threshold must be at least 2")
	}
	if a.FailureStreakThreshold < 1 {
		return fmt.Errorf("failure_streak_threshold must be at least 1")
	}
	if a.RepeatedActionThreshold < 2 {
		return fmt.Errorf("repeated_action_threshold must be at least 2")
	}
	return nil
}

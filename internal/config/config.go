package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	SNS        SNSConfig        `mapstructure:"sns" yaml:"sns"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
}

// LoggerConfig controls log output, format, and rotation.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// SimulationConfig describes one orchestrated run: the population, the
// concurrency ceiling, and the content the agents react to.
type SimulationConfig struct {
	RunID          string `mapstructure:"run_id" yaml:"run_id"`
	Goal           string `mapstructure:"goal" yaml:"goal"`
	TargetPersona  string `mapstructure:"target_persona" yaml:"target_persona"`
	CrowdCount     int    `mapstructure:"crowd_count" yaml:"crowd_count"`
	HeroEnabled    bool   `mapstructure:"hero_enabled" yaml:"hero_enabled"`
	MaxConcurrency int    `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	DryRun         bool   `mapstructure:"dry_run" yaml:"dry_run"`
	PersonaFile    string `mapstructure:"persona_file" yaml:"persona_file"`
	PostContext    string `mapstructure:"post_context" yaml:"post_context"`
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`
}

// AgentConfig bounds each agent's observe-decide-act loop.
type AgentConfig struct {
	MaxSteps        int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxRuntime      time.Duration `mapstructure:"max_runtime" yaml:"max_runtime"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout" yaml:"decision_timeout"`
	SleepMin        time.Duration `mapstructure:"sleep_min" yaml:"sleep_min"`
	SleepMax        time.Duration `mapstructure:"sleep_max" yaml:"sleep_max"`
}

// BrowserConfig holds settings for the hero agent's browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// SNSConfig points at the social-network surface under simulation.
type SNSConfig struct {
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Password    string  `mapstructure:"password" yaml:"password"`
	WriteRate   float64 `mapstructure:"write_rate" yaml:"write_rate"`
	AccountPool int     `mapstructure:"account_pool" yaml:"account_pool"`
}

// LLMConfig selects and credentials the hosted decision provider.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crowdsim-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Simulation --
	v.SetDefault("simulation.goal", "maximize-engagement")
	v.SetDefault("simulation.crowd_count", 5)
	v.SetDefault("simulation.hero_enabled", true)
	v.SetDefault("simulation.max_concurrency", 3)
	v.SetDefault("simulation.dry_run", false)
	v.SetDefault("simulation.output_dir", "./out")

	// -- Agent --
	v.SetDefault("agent.max_steps", 8)
	v.SetDefault("agent.max_runtime", "3m")
	v.SetDefault("agent.decision_timeout", "30s")
	v.SetDefault("agent.sleep_min", "800ms")
	v.SetDefault("agent.sleep_max", "2500ms")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- SNS surface --
	v.SetDefault("sns.base_url", "http://localhost:18383")
	v.SetDefault("sns.password", "password")
	v.SetDefault("sns.write_rate", 4.0)
	v.SetDefault("sns.account_pool", 10)

	// -- LLM --
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.6)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout", "30s")
}

// DefaultConfig returns a Config populated with defaults only. Handy for tests.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "SNSSIM_LLM_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("sns.password", "SNSSIM_SNS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal misses multi-name env bindings when no key is set in viper.
	if cfg.LLM.APIKey == "" {
		if key := os.Getenv("SNSSIM_LLM_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		} else {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Simulation.CrowdCount < 0 {
		return schemas.NewConfigError("simulation.crowd_count", "must be >= 0")
	}
	if c.Simulation.MaxConcurrency < 1 {
		return schemas.NewConfigError("simulation.max_concurrency", "must be >= 1")
	}
	if !c.Simulation.HeroEnabled && c.Simulation.CrowdCount == 0 {
		return schemas.NewConfigError("simulation", "nothing to run: hero disabled and crowd_count is 0")
	}
	if c.Agent.MaxSteps < 1 {
		return schemas.NewConfigError("agent.max_steps", "must be >= 1")
	}
	if c.Agent.SleepMin < 0 || c.Agent.SleepMax < c.Agent.SleepMin {
		return schemas.NewConfigError("agent.sleep_min/sleep_max", "must satisfy 0 <= min <= max")
	}
	if c.Agent.DecisionTimeout <= 0 || c.Agent.DecisionTimeout >= c.Agent.MaxRuntime {
		return schemas.NewConfigError("agent.decision_timeout", "must be positive and below agent.max_runtime")
	}
	if c.SNS.BaseURL == "" {
		return schemas.NewConfigError("sns.base_url", "is required")
	}
	if c.SNS.AccountPool < 1 {
		return schemas.NewConfigError("sns.account_pool", "must be >= 1")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return schemas.NewConfigError("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	return nil
}

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Simulation.CrowdCount)
	assert.True(t, cfg.Simulation.HeroEnabled)
	assert.Equal(t, 3, cfg.Simulation.MaxConcurrency)
	assert.Equal(t, 8, cfg.Agent.MaxSteps)
	assert.Equal(t, 3*time.Minute, cfg.Agent.MaxRuntime)
	assert.Equal(t, 800*time.Millisecond, cfg.Agent.SleepMin)
	assert.Equal(t, "http://localhost:18383", cfg.SNS.BaseURL)
	assert.Equal(t, 10, cfg.SNS.AccountPool)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("simulation.crowd_count", 12)
	v.Set("simulation.goal", "launch buzz")
	v.Set("agent.sleep_min", "50ms")
	v.Set("agent.sleep_max", "100ms")
	v.Set("browser.headless", false)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Simulation.CrowdCount = 12
	want.Simulation.Goal = "launch buzz"
	want.Agent.SleepMin = 50 * time.Millisecond
	want.Agent.SleepMax = 100 * time.Millisecond
	want.Browser.Headless = false
	want.LLM.APIKey = cfg.LLM.APIKey // env-dependent

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SNSSIM_LLM_API_KEY", "sk-test-123")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative crowd", func(c *Config) { c.Simulation.CrowdCount = -1 }, "simulation.crowd_count"},
		{"zero concurrency", func(c *Config) { c.Simulation.MaxConcurrency = 0 }, "simulation.max_concurrency"},
		{"nothing to run", func(c *Config) {
			c.Simulation.HeroEnabled = false
			c.Simulation.CrowdCount = 0
		}, "simulation"},
		{"zero steps", func(c *Config) { c.Agent.MaxSteps = 0 }, "agent.max_steps"},
		{"inverted sleep window", func(c *Config) {
			c.Agent.SleepMin = time.Second
			c.Agent.SleepMax = time.Millisecond
		}, "agent.sleep_min/sleep_max"},
		{"decision timeout above runtime", func(c *Config) {
			c.Agent.DecisionTimeout = 10 * time.Minute
		}, "agent.decision_timeout"},
		{"missing surface url", func(c *Config) { c.SNS.BaseURL = "" }, "sns.base_url"},
		{"empty account pool", func(c *Config) { c.SNS.AccountPool = 0 }, "sns.account_pool"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }, "llm.provider"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *schemas.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

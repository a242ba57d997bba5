// Package config loads the YAML configuration surface consumed at startup:
// registry defaults, memory consolidation knobs, trigger pool sizing and
// optional seed agent definitions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/trigger"
)

// Config is the root configuration document.
type Config struct {
	MaxChainDepth  int    `yaml:"max_chain_depth"`
	ChainStrategy  string `yaml:"chain_strategy"`
	LLMProvider    string `yaml:"llm_provider"`
	LLMModel       string `yaml:"llm_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	Memory  MemoryConfig  `yaml:"memory"`
	Trigger TriggerConfig `yaml:"trigger"`

	// Agents seeds the registry at startup.
	Agents []core.AgentDefinition `yaml:"agents"`
}

// MemoryConfig tunes short-term buffering and consolidation.
type MemoryConfig struct {
	ShortTermCap      int `yaml:"short_term_cap"`
	ConsolidateWindow int `yaml:"consolidate_window"`
	RetainCount       int `yaml:"retain_count"`
}

// TriggerConfig tunes the trigger dispatch pool.
type TriggerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		MaxChainDepth:  core.DefaultMaxChainDepth,
		ChainStrategy:  string(core.ChainStrategySequential),
		LLMProvider:    "openai",
		TimeoutSeconds: int(core.DefaultTimeout / time.Second),
		Memory: MemoryConfig{
			ShortTermCap:      memory.DefaultShortTermCap,
			ConsolidateWindow: memory.DefaultConsolidateWindow,
			RetainCount:       memory.DefaultRetainCount,
		},
		Trigger: TriggerConfig{
			Workers:   trigger.DefaultWorkers,
			QueueSize: 64,
		},
	}
}

// Load reads and validates a YAML config file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, filling unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.MaxChainDepth <= 0 {
		c.MaxChainDepth = d.MaxChainDepth
	}
	if c.ChainStrategy == "" {
		c.ChainStrategy = d.ChainStrategy
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.Memory.ShortTermCap <= 0 {
		c.Memory.ShortTermCap = d.Memory.ShortTermCap
	}
	if c.Memory.ConsolidateWindow <= 0 {
		c.Memory.ConsolidateWindow = d.Memory.ConsolidateWindow
	}
	if c.Memory.RetainCount <= 0 {
		c.Memory.RetainCount = d.Memory.RetainCount
	}
	if c.Trigger.Workers <= 0 {
		c.Trigger.Workers = d.Trigger.Workers
	}
	if c.Trigger.QueueSize <= 0 {
		c.Trigger.QueueSize = d.Trigger.QueueSize
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ChainStrategy != string(core.ChainStrategySequential) {
		return fmt.Errorf("unsupported chain_strategy %q", c.ChainStrategy)
	}
	if c.Memory.RetainCount > c.Memory.ShortTermCap {
		return fmt.Errorf("memory.retain_count (%d) must not exceed memory.short_term_cap (%d)",
			c.Memory.RetainCount, c.Memory.ShortTermCap)
	}
	return nil
}

// Timeout returns the configured timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SeedDefinitions returns the seed agents with registry-level defaults
// applied: definitions inherit the global provider, model, depth bound and
// timeout unless they set their own.
func (c *Config) SeedDefinitions() []*core.AgentDefinition {
	out := make([]*core.AgentDefinition, 0, len(c.Agents))
	for i := range c.Agents {
		def := c.Agents[i]
		if def.LLMProvider == "" {
			def.LLMProvider = c.LLMProvider
		}
		if def.LLMModel == "" {
			def.LLMModel = c.LLMModel
		}
		if def.MaxChainDepth <= 0 {
			def.MaxChainDepth = c.MaxChainDepth
		}
		if def.LLMParams.Timeout == 0 {
			def.LLMParams.Timeout = c.Timeout()
		}
		if !def.IsActive {
			def.IsActive = true
		}
		out = append(out, &def)
	}

	return out
}

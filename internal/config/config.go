// Package config handles gridmind configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./gridmind.yaml, ~/.config/gridmind/gridmind.yaml,
// /etc/gridmind/gridmind.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"gridmind.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gridmind", "gridmind.yaml"))
	}

	paths = append(paths, "/etc/gridmind/gridmind.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all gridmind configuration.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	LLM      LLMConfig    `yaml:"llm"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
	Sim      SimConfig    `yaml:"sim"`
	Agents   AgentsConfig `yaml:"agents"`
	LogLevel string       `yaml:"log_level"`
}

// ListenConfig defines the HTTP API listener.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the text-generation backend. When ClientID or
// ClientSecret is empty the pipeline runs in fallback-only mode and
// never attempts a network call.
type LLMConfig struct {
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Model        string `yaml:"model"`
	TimeoutSec   int    `yaml:"timeout_sec"` // per-generation timeout (default 30)
}

// Configured reports whether credentials are present.
func (c LLMConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// MQTTConfig defines the optional telemetry broker bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // default "gridmind"
	// PublishIntervalSec controls the snapshot publish cadence (default 30).
	PublishIntervalSec int `yaml:"publish_interval_sec"`
}

// SimConfig controls the simulated telemetry tick.
type SimConfig struct {
	TickIntervalSec int     `yaml:"tick_interval_sec"` // default 5
	HistorySize     int     `yaml:"history_size"`      // default 720 readings
	CostPerKWh      float64 `yaml:"cost_per_kwh"`      // default 0.12
}

// AgentsConfig controls the three analysis agent schedules.
type AgentsConfig struct {
	MonitorIntervalSec  int `yaml:"monitor_interval_sec"`  // default 300
	ForecastIntervalSec int `yaml:"forecast_interval_sec"` // default 900
	OptimizeIntervalSec int `yaml:"optimize_interval_sec"` // default 600
	HealthIntervalSec   int `yaml:"health_interval_sec"`   // default 30
	CoordIntervalSec    int `yaml:"coord_interval_sec"`    // default 60
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Model:      "granite-13b-chat-v2",
			TimeoutSec: 30,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values with sane defaults after unmarshal.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "gridmind"
	}
	if c.MQTT.PublishIntervalSec <= 0 {
		c.MQTT.PublishIntervalSec = 30
	}
	if c.Sim.TickIntervalSec <= 0 {
		c.Sim.TickIntervalSec = 5
	}
	if c.Sim.HistorySize <= 0 {
		c.Sim.HistorySize = 720
	}
	if c.Sim.CostPerKWh <= 0 {
		c.Sim.CostPerKWh = 0.12
	}
	if c.Agents.MonitorIntervalSec <= 0 {
		c.Agents.MonitorIntervalSec = 300
	}
	if c.Agents.ForecastIntervalSec <= 0 {
		c.Agents.ForecastIntervalSec = 900
	}
	if c.Agents.OptimizeIntervalSec <= 0 {
		c.Agents.OptimizeIntervalSec = 600
	}
	if c.Agents.HealthIntervalSec <= 0 {
		c.Agents.HealthIntervalSec = 30
	}
	if c.Agents.CoordIntervalSec <= 0 {
		c.Agents.CoordIntervalSec = 60
	}
}

// LLMTimeout returns the per-generation timeout as a Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

package hxstate

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport selects how page state is embedded in rendered markup.
type Transport string

const (
	// TransportJSON embeds state as a JSON literal assigned to a global.
	TransportJSON Transport = "json"

	// TransportSealed embeds state as a signed (or encrypted) msgpack string
	// in a data attribute. Use when the state is posted back to the server.
	TransportSealed Transport = "sealed"
)

// Config holds process-wide settings. It is the only value shared between
// pages; everything mutable lives on a *Page.
type Config struct {
	// GlobalName is the name of the client runtime global (default "$hxstate").
	GlobalName string `yaml:"global_name"`

	// GlobalContext is the global the page state is assigned to
	// (default "__HXSTATE__").
	GlobalContext string `yaml:"global_context"`

	// Dev enables developer warnings (hydration mismatches, duplicate keys).
	Dev bool `yaml:"dev"`

	// HotReload makes client refs ignore the snapshot and re-evaluate their
	// initial value.
	HotReload bool `yaml:"hot_reload"`

	// FetchDelay is the minimum time a client fetch stays pending.
	FetchDelay time.Duration `yaml:"fetch_delay"`

	// Transport selects the state embedding (default TransportJSON).
	Transport Transport `yaml:"transport"`

	// SealKey is the key used by TransportSealed.
	SealKey string `yaml:"seal_key"`

	// Sensitive encrypts sealed state instead of signing it.
	Sensitive bool `yaml:"sensitive"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.GlobalName == "" {
		c.GlobalName = "$hxstate"
	}
	if c.GlobalContext == "" {
		c.GlobalContext = "__HXSTATE__"
	}
	if c.Transport == "" {
		c.Transport = TransportJSON
	}
	if c.FetchDelay < 0 {
		c.FetchDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportJSON:
	case TransportSealed:
		if c.SealKey == "" {
			return fmt.Errorf("hxstate: transport %q requires seal_key", c.Transport)
		}
	default:
		return fmt.Errorf("hxstate: unknown transport %q", c.Transport)
	}
	return nil
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("hxstate: parse %s: %w", path, err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
